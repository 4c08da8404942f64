// Package classifier calls a remote image classification service.
package classifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/raysh454/glimpse/internal/audit"
	"github.com/raysh454/glimpse/internal/logging"
	"github.com/raysh454/glimpse/internal/webclient"
)

var (
	ErrNoEndpoint = errors.New("classifier: no endpoint configured")
	ErrService    = errors.New("classifier: service error")
)

type Config struct {
	Endpoint string        `yaml:"endpoint" json:"endpoint"`
	APIKey   string        `yaml:"api_key" json:"-"`
	Timeout  time.Duration `yaml:"timeout" json:"timeout"`
	// MinConfidence drops labels the service is less sure of.
	MinConfidence float64 `yaml:"min_confidence" json:"min_confidence"`
}

type request struct {
	ImageURL string `json:"image_url"`
}

type label struct {
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"`
}

type response struct {
	Labels       []label `json:"labels"`
	Stock        bool    `json:"stock"`
	Adult        bool    `json:"adult"`
	Violence     bool    `json:"violence"`
	People       bool    `json:"people"`
	Text         bool    `json:"text"`
	Illustration bool    `json:"illustration"`
}

// HTTPClassifier posts {"image_url": ...} to the endpoint and maps the flags
// in the reply onto image characteristics.
type HTTPClassifier struct {
	cfg    Config
	wc     webclient.WebClient
	logger logging.Logger
}

func NewHTTPClassifier(cfg Config, wc webclient.WebClient, logger logging.Logger) (*HTTPClassifier, error) {
	if cfg.Endpoint == "" {
		return nil, ErrNoEndpoint
	}
	if logger == nil {
		logger = logging.Nop{}
	}
	return &HTTPClassifier{
		cfg:    cfg,
		wc:     wc,
		logger: logger.With(logging.Field{Key: "component", Value: "classifier"}),
	}, nil
}

func (c *HTTPClassifier) Classify(ctx context.Context, imageURL string) (audit.ImageClassification, error) {
	if c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}
	body, err := json.Marshal(request{ImageURL: imageURL})
	if err != nil {
		return audit.ImageClassification{}, err
	}
	hdr := http.Header{}
	hdr.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		hdr.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.wc.Do(ctx, &webclient.Request{Method: http.MethodPost, URL: c.cfg.Endpoint, Headers: hdr, Body: body})
	if err != nil {
		return audit.ImageClassification{}, fmt.Errorf("classify %s: %w", imageURL, err)
	}
	if !resp.OK() {
		return audit.ImageClassification{}, fmt.Errorf("%w: status %d for %s", ErrService, resp.StatusCode, imageURL)
	}
	var out response
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		return audit.ImageClassification{}, fmt.Errorf("%w: decode reply: %v", ErrService, err)
	}
	c.logger.Debug("classified image", logging.Field{Key: "image", Value: imageURL}, logging.Field{Key: "labels", Value: len(out.Labels)})
	return c.convert(out), nil
}

func (c *HTTPClassifier) convert(r response) audit.ImageClassification {
	var cls audit.ImageClassification
	flags := []struct {
		set bool
		c   audit.ImageCharacteristic
	}{
		{r.Stock, audit.ImageStock},
		{r.Adult, audit.ImageAdult},
		{r.Violence, audit.ImageViolence},
		{r.People, audit.ImagePeople},
		{r.Text, audit.ImageText},
		{r.Illustration, audit.ImageIllustration},
	}
	for _, f := range flags {
		if f.set {
			cls.Characteristics = append(cls.Characteristics, f.c)
		}
	}
	sort.SliceStable(r.Labels, func(i, j int) bool { return r.Labels[i].Confidence > r.Labels[j].Confidence })
	for _, l := range r.Labels {
		if l.Confidence >= c.cfg.MinConfidence && l.Name != "" {
			cls.Labels = append(cls.Labels, l.Name)
		}
	}
	return cls
}
