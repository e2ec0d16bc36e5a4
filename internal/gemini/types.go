package gemini

import (
	"encoding/base64"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

type ImageInput struct {
	DataBase64 string
	MimeType   string
}

// NewImageInput encodes raw bytes for an inline request part.
func NewImageInput(data []byte, mimeType string) ImageInput {
	if strings.TrimSpace(mimeType) == "" {
		mimeType = "image/jpeg"
	}
	return ImageInput{DataBase64: base64.StdEncoding.EncodeToString(data), MimeType: mimeType}
}

type Response struct {
	Text   string
	Images []string
}

type generateContentRequest struct {
	Contents          []content        `json:"contents"`
	SystemInstruction *content         `json:"systemInstruction,omitempty"`
	GenerationConfig  generationConfig `json:"generationConfig,omitempty"`
}

type generationConfig struct {
	Temperature        float64      `json:"temperature,omitempty"`
	ResponseModalities []string     `json:"responseModalities,omitempty"`
	ImageConfig        *imageConfig `json:"imageConfig,omitempty"`
}

type imageConfig struct {
	AspectRatio string `json:"aspectRatio,omitempty"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text       string `json:"text,omitempty"`
	InlineData *blob  `json:"inlineData,omitempty"`
}

type blob struct {
	Data     string `json:"data"`
	MimeType string `json:"mimeType"`
}

type generateContentResponse struct {
	Candidates []candidate `json:"candidates"`
}

type candidate struct {
	Content content `json:"content"`
}

var dataURLRegex = regexp.MustCompile(`^data:([^;]+);base64,`)

// DecodeDataURL splits a base64 data URL into its bytes and mime type.
func DecodeDataURL(dataURL string) ([]byte, string, error) {
	dataURL = strings.TrimSpace(dataURL)
	matches := dataURLRegex.FindStringSubmatch(dataURL)
	if len(matches) != 2 {
		return nil, "", errors.New("not a base64 data url")
	}

	data, err := base64.StdEncoding.DecodeString(dataURL[len(matches[0]):])
	if err != nil {
		return nil, "", fmt.Errorf("decode data url: %w", err)
	}
	return data, matches[1], nil
}
