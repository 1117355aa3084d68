package vision

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
)

// maxImageBytes caps the download; Bedrock rejects larger image payloads.
const maxImageBytes = 5 << 20

// taggingPrompt asks the model for a bare JSON tag array so the response
// parses without prose stripping.
const taggingPrompt = `List the objects, animals, and concepts visible in this image.
Respond with ONLY a JSON array of lowercase tag strings ordered by confidence,
for example: ["cat","animal","pet"]. Respond with [] if nothing is recognizable.`

// BedrockClient implements Analyzer with a multimodal model on AWS
// Bedrock. Bedrock takes image bytes rather than a URL, so the client
// fetches the signed URL itself before invoking the model.
type BedrockClient struct {
	runtime *bedrockruntime.Client
	modelID string
	fetch   *http.Client
}

// Compile-time check that BedrockClient implements Analyzer.
var _ Analyzer = (*BedrockClient)(nil)

// NewBedrockClient creates a Bedrock-backed analyzer using the default
// AWS credential chain.
func NewBedrockClient(ctx context.Context, modelID string) (*BedrockClient, error) {
	if modelID == "" {
		return nil, fmt.Errorf("bedrock model id required")
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return &BedrockClient{
		runtime: bedrockruntime.NewFromConfig(cfg),
		modelID: modelID,
		fetch:   &http.Client{Timeout: 30 * time.Second},
	}, nil
}

// Analyze downloads the image and asks the model for tags.
func (c *BedrockClient) Analyze(ctx context.Context, imageURL string) ([]string, error) {
	data, format, err := c.fetchImage(ctx, imageURL)
	if err != nil {
		return nil, err
	}

	out, err := c.runtime.Converse(ctx, &bedrockruntime.ConverseInput{
		ModelId: aws.String(c.modelID),
		Messages: []types.Message{
			{
				Role: types.ConversationRoleUser,
				Content: []types.ContentBlock{
					&types.ContentBlockMemberImage{
						Value: types.ImageBlock{
							Format: format,
							Source: &types.ImageSourceMemberBytes{Value: data},
						},
					},
					&types.ContentBlockMemberText{Value: taggingPrompt},
				},
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("converse: %w", err)
	}

	msg, ok := out.Output.(*types.ConverseOutputMemberMessage)
	if !ok || len(msg.Value.Content) == 0 {
		return nil, fmt.Errorf("converse: empty model output")
	}
	text, ok := msg.Value.Content[0].(*types.ContentBlockMemberText)
	if !ok {
		return nil, fmt.Errorf("converse: unexpected content type %T", msg.Value.Content[0])
	}

	tags, err := parseTagArray(text.Value)
	if err != nil {
		return nil, fmt.Errorf("parse model output: %w", err)
	}
	return normalizeTags(tags), nil
}

// fetchImage downloads the signed URL and maps the content type to a
// Bedrock image format.
func (c *BedrockClient) fetchImage(ctx context.Context, imageURL string) ([]byte, types.ImageFormat, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("create fetch request: %w", err)
	}
	resp, err := c.fetch.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("fetch image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("fetch image: status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("read image: %w", err)
	}
	if len(data) > maxImageBytes {
		return nil, "", fmt.Errorf("image exceeds %d bytes", maxImageBytes)
	}

	var format types.ImageFormat
	switch resp.Header.Get("Content-Type") {
	case "image/png":
		format = types.ImageFormatPng
	case "image/gif":
		format = types.ImageFormatGif
	case "image/webp":
		format = types.ImageFormatWebp
	default:
		format = types.ImageFormatJpeg
	}
	return data, format, nil
}

// parseTagArray extracts a JSON string array from the model's reply,
// tolerating surrounding prose or code fences.
func parseTagArray(text string) ([]string, error) {
	start := strings.Index(text, "[")
	end := strings.LastIndex(text, "]")
	if start == -1 || end == -1 || end < start {
		return nil, fmt.Errorf("no JSON array in %q", text)
	}
	var tags []string
	if err := json.Unmarshal([]byte(text[start:end+1]), &tags); err != nil {
		return nil, err
	}
	return tags, nil
}
