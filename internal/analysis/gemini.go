package analysis

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// Image is a downloaded photo on local disk.
type Image struct {
	Path string
}

// Analyzer turns two hair photos and an instruction into a diagnosis text.
type Analyzer interface {
	Analyze(ctx context.Context, images []Image, instruction string) (string, error)
}

// GeminiAnalyzer implements Analyzer using Google's Gemini API.
type GeminiAnalyzer struct {
	client  *genai.Client
	modelID string
}

// NewGeminiAnalyzer creates a Gemini client for the given model.
func NewGeminiAnalyzer(ctx context.Context, apiKey, modelID string) (*GeminiAnalyzer, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("analysis: gemini api key is required")
	}
	if strings.TrimSpace(modelID) == "" {
		modelID = "gemini-2.5-flash"
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("analysis: failed to create gemini client: %w", err)
	}
	return &GeminiAnalyzer{client: client, modelID: modelID}, nil
}

func (g *GeminiAnalyzer) Analyze(ctx context.Context, images []Image, instruction string) (string, error) {
	if len(images) == 0 {
		return "", errors.New("analysis: at least one image is required")
	}

	parts := []genai.Part{genai.Text(instruction)}
	for _, img := range images {
		data, err := os.ReadFile(img.Path)
		if err != nil {
			return "", fmt.Errorf("analysis: read %s: %w", filepath.Base(img.Path), err)
		}
		parts = append(parts, genai.ImageData(imageFormat(img.Path), data))
	}

	model := g.client.GenerativeModel(g.modelID)
	resp, err := model.GenerateContent(ctx, parts...)
	if err != nil {
		return "", fmt.Errorf("analysis: gemini generate failed: %w", err)
	}
	if len(resp.Candidates) == 0 {
		return "", errors.New("analysis: gemini returned no candidates")
	}

	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return "", errors.New("analysis: gemini returned empty content")
	}

	var text strings.Builder
	for _, part := range candidate.Content.Parts {
		if t, ok := part.(genai.Text); ok {
			text.WriteString(string(t))
		}
	}
	out := strings.TrimSpace(text.String())
	if out == "" {
		return "", errors.New("analysis: gemini returned no text")
	}
	return out, nil
}

// Close releases resources held by the Gemini client.
func (g *GeminiAnalyzer) Close() error {
	if g.client != nil {
		return g.client.Close()
	}
	return nil
}

// imageFormat returns the genai image format for a file extension.
func imageFormat(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		return "png"
	case ".webp":
		return "webp"
	case ".heic":
		return "heic"
	default:
		return "jpeg"
	}
}
