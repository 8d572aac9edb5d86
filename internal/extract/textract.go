package extract

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/textract"
	"github.com/aws/aws-sdk-go-v2/service/textract/types"
	"github.com/rs/zerolog/log"
)

// TextractAPI is the subset of textract.Client used for layout detection.
type TextractAPI interface {
	AnalyzeDocument(ctx context.Context, in *textract.AnalyzeDocumentInput, optFns ...func(*textract.Options)) (*textract.AnalyzeDocumentOutput, error)
	StartDocumentAnalysis(ctx context.Context, in *textract.StartDocumentAnalysisInput, optFns ...func(*textract.Options)) (*textract.StartDocumentAnalysisOutput, error)
	GetDocumentAnalysis(ctx context.Context, in *textract.GetDocumentAnalysisInput, optFns ...func(*textract.Options)) (*textract.GetDocumentAnalysisOutput, error)
}

// Stager puts a document where async Textract can read it, and removes it afterwards.
type Stager interface {
	Stage(ctx context.Context, key string, data []byte) (bucket string, err error)
	Remove(ctx context.Context, key string) error
}

// Findings are the table and form counts Textract reports.
type Findings struct {
	Tables     int
	FormFields int
}

// TextractAnalyzer detects tables and forms with AWS Textract.
// Single pages go through the synchronous API; longer documents are staged to S3.
type TextractAnalyzer struct {
	api       TextractAPI
	stager    Stager
	pollEvery time.Duration
	maxWait   time.Duration
}

func NewTextractAnalyzer(api TextractAPI, stager Stager, pollEvery, maxWait time.Duration) *TextractAnalyzer {
	if pollEvery <= 0 {
		pollEvery = 2 * time.Second
	}
	if maxWait <= 0 {
		maxWait = 3 * time.Minute
	}
	return &TextractAnalyzer{api: api, stager: stager, pollEvery: pollEvery, maxWait: maxWait}
}

var features = []types.FeatureType{types.FeatureTypeTables, types.FeatureTypeForms}

func (t *TextractAnalyzer) Analyze(ctx context.Context, jobID string, data []byte, pages int) (Findings, error) {
	if pages <= 1 {
		out, err := t.api.AnalyzeDocument(ctx, &textract.AnalyzeDocumentInput{
			Document:     &types.Document{Bytes: data},
			FeatureTypes: features,
		})
		if err != nil {
			return Findings{}, fmt.Errorf("textract analyze: %w", err)
		}
		return countBlocks(out.Blocks), nil
	}

	if t.stager == nil {
		return Findings{}, errors.New("textract: no staging bucket for multi-page document")
	}
	key := "textract/" + jobID + ".pdf"
	bucket, err := t.stager.Stage(ctx, key, data)
	if err != nil {
		return Findings{}, fmt.Errorf("textract stage: %w", err)
	}
	defer func() {
		if err := t.stager.Remove(context.Background(), key); err != nil {
			log.Warn().Err(err).Str("job_id", jobID).Str("key", key).Msg("failed to remove staged document")
		}
	}()

	start, err := t.api.StartDocumentAnalysis(ctx, &textract.StartDocumentAnalysisInput{
		DocumentLocation: &types.DocumentLocation{S3Object: &types.S3Object{Bucket: aws.String(bucket), Name: aws.String(key)}},
		FeatureTypes:     features,
	})
	if err != nil {
		return Findings{}, fmt.Errorf("textract start: %w", err)
	}
	return t.collect(ctx, aws.ToString(start.JobId))
}

// collect polls until the async job finishes and pages through its blocks.
func (t *TextractAnalyzer) collect(ctx context.Context, textractJob string) (Findings, error) {
	ctx, cancel := context.WithTimeout(ctx, t.maxWait)
	defer cancel()
	ticker := time.NewTicker(t.pollEvery)
	defer ticker.Stop()

	var total Findings
	var next *string
	for {
		out, err := t.api.GetDocumentAnalysis(ctx, &textract.GetDocumentAnalysisInput{JobId: aws.String(textractJob), NextToken: next})
		if err != nil {
			return Findings{}, fmt.Errorf("textract get: %w", err)
		}
		switch out.JobStatus {
		case types.JobStatusInProgress:
			select {
			case <-ctx.Done():
				return Findings{}, fmt.Errorf("textract job %s: %w", textractJob, ctx.Err())
			case <-ticker.C:
			}
			continue
		case types.JobStatusFailed:
			return Findings{}, fmt.Errorf("textract job %s failed: %s", textractJob, aws.ToString(out.StatusMessage))
		}

		f := countBlocks(out.Blocks)
		total.Tables += f.Tables
		total.FormFields += f.FormFields
		if out.NextToken == nil || *out.NextToken == "" {
			return total, nil
		}
		next = out.NextToken
	}
}

func countBlocks(blocks []types.Block) Findings {
	var f Findings
	for _, b := range blocks {
		switch b.BlockType {
		case types.BlockTypeTable:
			f.Tables++
		case types.BlockTypeKeyValueSet:
			for _, et := range b.EntityTypes {
				if et == types.EntityTypeKey {
					f.FormFields++
					break
				}
			}
		}
	}
	return f
}
