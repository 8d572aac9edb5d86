package extract

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/textract"
	"github.com/aws/aws-sdk-go-v2/service/textract/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTextract struct {
	syncBlocks []types.Block
	pages      []*textract.GetDocumentAnalysisOutput
	gets       int
	started    *textract.StartDocumentAnalysisInput
}

func (f *fakeTextract) AnalyzeDocument(ctx context.Context, in *textract.AnalyzeDocumentInput, _ ...func(*textract.Options)) (*textract.AnalyzeDocumentOutput, error) {
	return &textract.AnalyzeDocumentOutput{Blocks: f.syncBlocks}, nil
}

func (f *fakeTextract) StartDocumentAnalysis(ctx context.Context, in *textract.StartDocumentAnalysisInput, _ ...func(*textract.Options)) (*textract.StartDocumentAnalysisOutput, error) {
	f.started = in
	return &textract.StartDocumentAnalysisOutput{JobId: aws.String("tx-1")}, nil
}

func (f *fakeTextract) GetDocumentAnalysis(ctx context.Context, in *textract.GetDocumentAnalysisInput, _ ...func(*textract.Options)) (*textract.GetDocumentAnalysisOutput, error) {
	if f.gets >= len(f.pages) {
		return nil, errors.New("no more pages")
	}
	out := f.pages[f.gets]
	f.gets++
	return out, nil
}

type fakeStager struct {
	staged  map[string][]byte
	removed []string
}

func (s *fakeStager) Stage(ctx context.Context, key string, data []byte) (string, error) {
	if s.staged == nil {
		s.staged = map[string][]byte{}
	}
	s.staged[key] = data
	return "staging-bucket", nil
}

func (s *fakeStager) Remove(ctx context.Context, key string) error {
	s.removed = append(s.removed, key)
	return nil
}

func keyBlock() types.Block {
	return types.Block{BlockType: types.BlockTypeKeyValueSet, EntityTypes: []types.EntityType{types.EntityTypeKey}}
}

func TestTextractSinglePageUsesSyncAPI(t *testing.T) {
	api := &fakeTextract{syncBlocks: []types.Block{
		{BlockType: types.BlockTypeTable},
		keyBlock(),
		{BlockType: types.BlockTypeKeyValueSet, EntityTypes: []types.EntityType{types.EntityTypeValue}},
		{BlockType: types.BlockTypeLine},
	}}
	ta := NewTextractAnalyzer(api, nil, time.Millisecond, time.Second)

	f, err := ta.Analyze(context.Background(), "job", []byte("%PDF"), 1)
	require.NoError(t, err)
	assert.Equal(t, Findings{Tables: 1, FormFields: 1}, f)
	assert.Nil(t, api.started)
}

func TestTextractMultiPageStagesPollsAndCleansUp(t *testing.T) {
	api := &fakeTextract{pages: []*textract.GetDocumentAnalysisOutput{
		{JobStatus: types.JobStatusInProgress},
		{JobStatus: types.JobStatusSucceeded, Blocks: []types.Block{{BlockType: types.BlockTypeTable}}, NextToken: aws.String("p2")},
		{JobStatus: types.JobStatusSucceeded, Blocks: []types.Block{{BlockType: types.BlockTypeTable}, keyBlock()}},
	}}
	st := &fakeStager{}
	ta := NewTextractAnalyzer(api, st, time.Millisecond, time.Second)

	f, err := ta.Analyze(context.Background(), "job-9", []byte("%PDF"), 4)
	require.NoError(t, err)
	assert.Equal(t, Findings{Tables: 2, FormFields: 1}, f)

	require.NotNil(t, api.started)
	assert.Equal(t, "staging-bucket", aws.ToString(api.started.DocumentLocation.S3Object.Bucket))
	assert.Equal(t, "textract/job-9.pdf", aws.ToString(api.started.DocumentLocation.S3Object.Name))
	assert.Equal(t, []string{"textract/job-9.pdf"}, st.removed)
}

func TestTextractFailedJob(t *testing.T) {
	api := &fakeTextract{pages: []*textract.GetDocumentAnalysisOutput{
		{JobStatus: types.JobStatusFailed, StatusMessage: aws.String("bad document")},
	}}
	st := &fakeStager{}
	_, err := NewTextractAnalyzer(api, st, time.Millisecond, time.Second).Analyze(context.Background(), "j", []byte("x"), 2)
	assert.ErrorContains(t, err, "bad document")
	assert.Len(t, st.removed, 1)
}

func TestTextractMultiPageNeedsStager(t *testing.T) {
	_, err := NewTextractAnalyzer(&fakeTextract{}, nil, 0, 0).Analyze(context.Background(), "j", []byte("x"), 3)
	assert.Error(t, err)
}
