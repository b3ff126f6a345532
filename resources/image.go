package resources

import (
	"context"
	"encoding/base64"
	"fmt"
)

// Text2Image generates images from a prompt.
type Text2Image struct {
	base
}

// NewText2Image returns a Text2Image configured by opts.
func NewText2Image(opts ...Option) *Text2Image {
	t := &Text2Image{}
	t.apply(opts)
	return t
}

// Text2ImageRequest is the input of Text2Image.
type Text2ImageRequest struct {
	Model    string `json:"-"`
	Endpoint string `json:"-"`

	Prompt         string `json:"prompt"`
	NegativePrompt string `json:"negative_prompt,omitempty"`
	Size           string `json:"size,omitempty"` // e.g. "1024x1024"
	N              int    `json:"n,omitempty"`
	Steps          int    `json:"steps,omitempty"`
	SamplerIndex   string `json:"sampler_index,omitempty"`
	UserID         string `json:"user_id,omitempty"`

	Extra map[string]any `json:"-"`
}

// ImageData is one generated image.
type ImageData struct {
	Object   string `json:"object"`
	B64Image string `json:"b64_image"`
	Index    int    `json:"index"`
}

// ImageResponse holds the generated images.
type ImageResponse struct {
	ID      string      `json:"id"`
	Object  string      `json:"object"`
	Created int64       `json:"created"`
	Data    []ImageData `json:"data"`
	Usage   Usage       `json:"usage"`
	Meta
}

// Images decodes the base64 payloads, in the order they were returned.
func (r *ImageResponse) Images() ([][]byte, error) {
	out := make([][]byte, 0, len(r.Data))
	for _, d := range r.Data {
		img, err := base64.StdEncoding.DecodeString(d.B64Image)
		if err != nil {
			return nil, fmt.Errorf("decode image %d: %w", d.Index, err)
		}
		out = append(out, img)
	}
	return out, nil
}

// Do generates the images.
func (t *Text2Image) Do(ctx context.Context, req *Text2ImageRequest, opts ...CallOption) (*ImageResponse, error) {
	body, err := buildBody(req, req.Extra)
	if err != nil {
		return nil, err
	}
	cl, err := t.prepare(ctx, text2ImageKind, req.Model, req.Endpoint, body, opts)
	if err != nil {
		return nil, err
	}
	resp, err := t.do(ctx, cl)
	if err != nil {
		return nil, err
	}
	out, err := decode[ImageResponse](resp)
	if err != nil {
		return nil, err
	}
	recordCall(ctx, cl, out.ID, out.Usage, out.Statistic)
	return out, nil
}

// Image2Text answers a prompt about an image. It has no preset model: an
// endpoint is always required.
type Image2Text struct {
	base
}

// NewImage2Text returns an Image2Text configured by opts.
func NewImage2Text(opts ...Option) *Image2Text {
	i := &Image2Text{}
	i.apply(opts)
	return i
}

// Image2TextRequest is the input of Image2Text. Image holds the raw image
// bytes; they are base64 encoded on the wire.
type Image2TextRequest struct {
	Model    string `json:"-"`
	Endpoint string `json:"-"`

	Prompt string `json:"prompt"`
	Image  []byte `json:"image"`
	UserID string `json:"user_id,omitempty"`

	Extra map[string]any `json:"-"`
}

// Image2TextResponse is the answer of Image2Text.
type Image2TextResponse struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	Result  string `json:"result"`
	Usage   Usage  `json:"usage"`
	Meta
}

// Do sends the image and the prompt.
func (i *Image2Text) Do(ctx context.Context, req *Image2TextRequest, opts ...CallOption) (*Image2TextResponse, error) {
	body, err := buildBody(req, req.Extra)
	if err != nil {
		return nil, err
	}
	cl, err := i.prepare(ctx, image2TextKind, req.Model, req.Endpoint, body, opts)
	if err != nil {
		return nil, err
	}
	resp, err := i.do(ctx, cl)
	if err != nil {
		return nil, err
	}
	out, err := decode[Image2TextResponse](resp)
	if err != nil {
		return nil, err
	}
	recordCall(ctx, cl, out.ID, out.Usage, out.Statistic)
	return out, nil
}
