package genai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"tryon/internal/infra"
)

// DefaultTryOnPrompt instructs the model to composite the garment onto the person.
const DefaultTryOnPrompt = "Virtual try-on. The first image shows a person, the second image shows a garment. " +
	"Produce one photorealistic image of the same person wearing the garment. " +
	"Keep the face, pose, body shape, lighting and background of the first image unchanged."

// ErrNoImage is returned when Gemini answers without an image part.
var ErrNoImage = errors.New("gemini returned no image")

// Options controls how the Gemini client is configured.
type Options struct {
	APIKey     string
	BaseURL    string
	Model      string
	Prompt     string
	HTTPClient *http.Client
	Logger     *infra.Logger
}

// Client is a thin REST facade over the Gemini generateContent endpoint.
type Client struct {
	apiKey     string
	baseURL    string
	model      string
	prompt     string
	httpClient *http.Client
	logger     *infra.Logger
}

// InputImage is an encoded image sent inline with a request.
type InputImage struct {
	MimeType string
	Data     []byte
}

// TryOnRequest carries the two images of a virtual try-on.
type TryOnRequest struct {
	Person    InputImage
	Clothing  InputImage
	RequestID string
}

// ImageAsset is the normalized image returned by Gemini.
type ImageAsset struct {
	URL    string
	Format string
	Width  int
	Height int
	Data   []byte
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts,omitempty"`
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inlineData,omitempty"`
	FileData   *geminiFileData   `json:"fileData,omitempty"`
}

type geminiInlineData struct {
	MimeType string `json:"mimeType,omitempty"`
	Data     string `json:"data,omitempty"`
}

type geminiFileData struct {
	MimeType string `json:"mimeType,omitempty"`
	FileURI  string `json:"fileUri,omitempty"`
}

type geminiGenerationConfig struct {
	CandidateCount     int      `json:"candidateCount,omitempty"`
	ResponseModalities []string `json:"responseModalities,omitempty"`
}

type geminiGenerateContentRequest struct {
	Contents         []geminiContent         `json:"contents"`
	GenerationConfig *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiCandidate struct {
	Content      geminiContent `json:"content"`
	FinishReason string        `json:"finishReason,omitempty"`
}

type geminiGenerateContentResponse struct {
	Candidates     []geminiCandidate `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason,omitempty"`
	} `json:"promptFeedback,omitempty"`
}

type geminiErrorResponse struct {
	Error struct {
		Code    int    `json:"code,omitempty"`
		Message string `json:"message,omitempty"`
	} `json:"error"`
}

// NewClient constructs a Gemini client with sane defaults. Callers may provide
// a nil HTTP client; one with a generous timeout will be created.
func NewClient(opts Options) (*Client, error) {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 90 * time.Second}
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://generativelanguage.googleapis.com/v1beta"
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}

	model := opts.Model
	if model == "" {
		model = "gemini-2.5-flash-image"
	}

	prompt := strings.TrimSpace(opts.Prompt)
	if prompt == "" {
		prompt = DefaultTryOnPrompt
	}

	var logger *infra.Logger
	if opts.Logger != nil {
		logger = opts.Logger
	} else {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}

	return &Client{
		apiKey:     strings.TrimSpace(opts.APIKey),
		baseURL:    baseURL,
		model:      model,
		prompt:     prompt,
		httpClient: client,
		logger:     logger,
	}, nil
}

// Model returns the configured Gemini model identifier.
func (c *Client) Model() string {
	return c.model
}

// Configured reports whether an API key is present.
func (c *Client) Configured() bool {
	return c.apiKey != ""
}

// TryOn sends the person and clothing images to Gemini and returns the first
// image it produces. Remote failures are returned as errors.
func (c *Client) TryOn(ctx context.Context, req TryOnRequest) (*ImageAsset, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !c.Configured() {
		return nil, errors.New("gemini api key is not configured")
	}
	if len(req.Person.Data) == 0 || len(req.Clothing.Data) == 0 {
		return nil, errors.New("try-on requires both images")
	}

	payload := geminiGenerateContentRequest{
		Contents: []geminiContent{{
			Role: "user",
			Parts: []geminiPart{
				{Text: c.prompt},
				inlinePart(req.Person),
				inlinePart(req.Clothing),
			},
		}},
		GenerationConfig: &geminiGenerationConfig{
			CandidateCount:     1,
			ResponseModalities: []string{"TEXT", "IMAGE"},
		},
	}

	started := time.Now()
	var response geminiGenerateContentResponse
	if err := c.invokeGemini(ctx, fmt.Sprintf("/models/%s:generateContent", url.PathEscape(c.model)), payload, &response); err != nil {
		return nil, err
	}

	for _, candidate := range response.Candidates {
		for _, part := range candidate.Content.Parts {
			asset, err := c.decodeInlineAsset(ctx, part)
			if err != nil {
				c.logger.Debug().Err(err).Str("request_id", req.RequestID).Msg("genai: skip undecodable part")
				continue
			}
			if len(asset.Data) == 0 {
				continue
			}
			w, h := decodeImageDimensions(asset.Data)
			c.logger.Debug().
				Str("request_id", req.RequestID).
				Str("model", c.model).
				Int("bytes", len(asset.Data)).
				Dur("took", time.Since(started)).
				Msg("genai: try-on image generated")
			return &ImageAsset{
				URL:    asset.URL,
				Format: firstNonEmpty(asset.Format, "image/png"),
				Width:  w,
				Height: h,
				Data:   asset.Data,
			}, nil
		}
	}

	if response.PromptFeedback != nil && response.PromptFeedback.BlockReason != "" {
		return nil, fmt.Errorf("%w: blocked (%s)", ErrNoImage, response.PromptFeedback.BlockReason)
	}
	if text := firstText(response); text != "" {
		return nil, fmt.Errorf("%w: %s", ErrNoImage, text)
	}
	return nil, ErrNoImage
}

func inlinePart(img InputImage) geminiPart {
	mime := img.MimeType
	if mime == "" {
		mime = http.DetectContentType(img.Data)
	}
	return geminiPart{InlineData: &geminiInlineData{
		MimeType: mime,
		Data:     base64.StdEncoding.EncodeToString(img.Data),
	}}
}

// truncateRunes cuts s to at most n runes.
func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

func firstText(resp geminiGenerateContentResponse) string {
	for _, candidate := range resp.Candidates {
		for _, part := range candidate.Content.Parts {
			if text := strings.TrimSpace(part.Text); text != "" {
				return truncateRunes(text, 200)
			}
		}
	}
	return ""
}

type inlineAsset struct {
	Data   []byte
	Format string
	URL    string
}

func (c *Client) invokeGemini(ctx context.Context, path string, payload any, out any) error {
	endpoint := c.baseURL + path
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("invoke gemini: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		var apiErr geminiErrorResponse
		if err := json.Unmarshal(data, &apiErr); err == nil && apiErr.Error.Message != "" {
			return fmt.Errorf("gemini status %d: %s", resp.StatusCode, apiErr.Error.Message)
		}
		if msg := strings.TrimSpace(string(data)); msg != "" {
			return fmt.Errorf("gemini status %d: %s", resp.StatusCode, msg)
		}
		return fmt.Errorf("gemini status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode gemini response: %w", err)
	}
	return nil
}

func (c *Client) decodeInlineAsset(ctx context.Context, part geminiPart) (inlineAsset, error) {
	if part.InlineData != nil && part.InlineData.Data != "" {
		data, err := base64.StdEncoding.DecodeString(part.InlineData.Data)
		if err != nil {
			return inlineAsset{}, fmt.Errorf("decode inline data: %w", err)
		}
		return inlineAsset{Data: data, Format: part.InlineData.MimeType}, nil
	}

	if part.FileData != nil && part.FileData.FileURI != "" {
		data, mime, err := c.downloadFile(ctx, part.FileData.FileURI)
		if err != nil {
			return inlineAsset{}, err
		}
		return inlineAsset{Data: data, Format: firstNonEmpty(part.FileData.MimeType, mime), URL: part.FileData.FileURI}, nil
	}

	return inlineAsset{}, nil
}

func (c *Client) downloadFile(ctx context.Context, uri string) ([]byte, string, error) {
	target := uri
	if !strings.HasPrefix(uri, "http://") && !strings.HasPrefix(uri, "https://") {
		target = c.baseURL + "/" + strings.TrimLeft(uri, "/")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, "", fmt.Errorf("create download request: %w", err)
	}
	// The key only goes to the API host; file URIs may point elsewhere.
	if c.sameHost(req.URL) {
		req.Header.Set("x-goog-api-key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("download file: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return nil, "", fmt.Errorf("download file status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	blob, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("read file: %w", err)
	}
	return blob, resp.Header.Get("Content-Type"), nil
}

func (c *Client) sameHost(u *url.URL) bool {
	base, err := url.Parse(c.baseURL)
	if err != nil {
		return false
	}
	return strings.EqualFold(base.Scheme, u.Scheme) && strings.EqualFold(base.Host, u.Host)
}

func decodeImageDimensions(data []byte) (int, int) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, 0
	}
	return cfg.Width, cfg.Height
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
