package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
)

const defaultImageModel = "gemini-2.5-flash-image"

const systemInstruction = `You are a portrait retoucher producing professional headshots.
You always return the finished photograph as inline image data.
You never change who the person is.`

// ErrNoImage is returned when the model answered without any inline image.
var ErrNoImage = errors.New("gemini returned no image")

type Options struct {
	APIKey     string
	BaseURL    string
	APIVersion string
	Model      string
	HTTPClient *http.Client
	Logger     *slog.Logger
}

type ImageOptions struct {
	AspectRatio string
}

type Client struct {
	apiKey     string
	baseURL    string
	apiVersion string
	model      string
	httpClient *http.Client
	logger     *slog.Logger
}

func New(opts Options) *Client {
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://generativelanguage.googleapis.com"
	}

	apiVersion := strings.TrimSpace(opts.APIVersion)
	if apiVersion == "" {
		apiVersion = "v1beta"
	}

	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = defaultImageModel
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Client{
		apiKey:     opts.APIKey,
		baseURL:    baseURL,
		apiVersion: apiVersion,
		model:      model,
		httpClient: opts.HTTPClient,
		logger:     logger,
	}
}

// EditImage asks the image model to produce one picture from prompt and the
// reference photos. Images come back as data URLs.
func (c *Client) EditImage(ctx context.Context, prompt string, images []ImageInput, opts ImageOptions) ([]string, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return nil, errors.New("prompt is empty")
	}
	if len(images) == 0 {
		return nil, errors.New("no reference images")
	}

	req := generateContentRequest{
		Contents:          buildContents(prompt, images),
		SystemInstruction: &content{Role: "user", Parts: []part{{Text: systemInstruction}}},
		GenerationConfig: generationConfig{
			ResponseModalities: []string{"IMAGE", "TEXT"},
		},
	}
	if ratio := strings.TrimSpace(opts.AspectRatio); ratio != "" {
		req.GenerationConfig.ImageConfig = &imageConfig{AspectRatio: ratio}
	}

	resp, err := c.generateContent(ctx, c.model, req)
	if err != nil && req.GenerationConfig.ImageConfig != nil && isUnknownFieldError(err, "imageConfig") {
		c.logger.Warn("imageConfig not supported, retrying without it", "model", c.model)
		req.GenerationConfig.ImageConfig = nil
		resp, err = c.generateContent(ctx, c.model, req)
	}
	if err != nil {
		return nil, err
	}

	if len(resp.Images) == 0 {
		c.logger.Warn("no image in response, retrying", "model", c.model, "text", truncate(resp.Text, 200))
		req.Contents = buildContents(prompt+"\n\nReturn only the edited photograph as inline image data. Do not write text, JSON or links.", images)
		retryResp, retryErr := c.generateContent(ctx, c.model, req)
		if retryErr == nil && len(retryResp.Images) > 0 {
			return retryResp.Images, nil
		}
		return nil, ErrNoImage
	}

	return resp.Images, nil
}

func buildContents(prompt string, images []ImageInput) []content {
	if len(images) == 1 {
		return []content{{
			Role: "user",
			Parts: []part{
				{Text: prompt},
				{InlineData: &blob{Data: stripDataURLPrefix(images[0].DataBase64), MimeType: images[0].MimeType}},
			},
		}}
	}

	parts := []part{{
		Text: prompt + "\n\nAll photos below show the same person. Use every one of them as an identity reference.",
	}}
	for i, img := range images {
		parts = append(parts,
			part{Text: fmt.Sprintf("Reference photo #%d:", i+1)},
			part{InlineData: &blob{
				Data:     stripDataURLPrefix(img.DataBase64),
				MimeType: img.MimeType,
			}},
		)
	}
	return []content{{Role: "user", Parts: parts}}
}

func (c *Client) generateContent(ctx context.Context, model string, payload generateContentRequest) (Response, error) {
	if c.httpClient == nil {
		return Response{}, errors.New("http client is nil")
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return Response{}, fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/%s/models/%s:generateContent", c.baseURL, c.apiVersion, model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return Response{}, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("content-type", "application/json")
	httpReq.Header.Set("x-goog-api-key", c.apiKey)

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return Response{}, fmt.Errorf("request: %w", err)
	}
	defer httpResp.Body.Close()

	rawBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return Response{}, fmt.Errorf("read response: %w", err)
	}

	if httpResp.StatusCode >= 400 {
		return Response{}, fmt.Errorf("gemini API %s: %s", httpResp.Status, strings.TrimSpace(string(rawBody)))
	}

	var decoded generateContentResponse
	if err := json.Unmarshal(rawBody, &decoded); err != nil {
		return Response{}, fmt.Errorf("decode response: %w", err)
	}

	text, images := extractParts(decoded)
	return Response{
		Text:   text,
		Images: images,
	}, nil
}

func extractParts(resp generateContentResponse) (string, []string) {
	if len(resp.Candidates) == 0 {
		return "", nil
	}

	var textBuilder strings.Builder
	var images []string

	for _, p := range resp.Candidates[0].Content.Parts {
		if p.Text != "" {
			textBuilder.WriteString(p.Text)
		}
		if p.InlineData != nil && p.InlineData.Data != "" && p.InlineData.MimeType != "" {
			images = append(images, fmt.Sprintf("data:%s;base64,%s", p.InlineData.MimeType, p.InlineData.Data))
		}
	}

	return textBuilder.String(), images
}

func stripDataURLPrefix(value string) string {
	if idx := strings.IndexByte(value, ','); idx >= 0 {
		return value[idx+1:]
	}
	return value
}

func isUnknownFieldError(err error, field string) bool {
	message := err.Error()
	return strings.Contains(message, "Unknown name") && strings.Contains(message, field)
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
