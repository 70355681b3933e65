package handlers

import (
	"time"

	domain "github.com/lovegallery/api/internal/domain"
)

const (
	defaultMaxPhotoBytes int64 = 10 << 20
	defaultMaxMusicBytes int64 = 15 << 20
)

type handlerConfig struct {
	maxPhotoBytes int64
	maxMusicBytes int64
	limiter       rateLimiter
}

// HandlerOption tunes upload limits and throttling of a handler group.
type HandlerOption func(*handlerConfig)

// WithUploadLimits bounds individual photo and music uploads.
func WithUploadLimits(maxPhotoBytes, maxMusicBytes int64) HandlerOption {
	return func(cfg *handlerConfig) {
		if maxPhotoBytes > 0 {
			cfg.maxPhotoBytes = maxPhotoBytes
		}
		if maxMusicBytes > 0 {
			cfg.maxMusicBytes = maxMusicBytes
		}
	}
}

// WithRateLimit throttles the group's write endpoints per client. Zero disables throttling.
func WithRateLimit(perMinute int) HandlerOption {
	return func(cfg *handlerConfig) {
		cfg.limiter = newRateLimiter(perMinute, time.Minute, nil)
	}
}

func newHandlerConfig(opts []HandlerOption) handlerConfig {
	cfg := handlerConfig{
		maxPhotoBytes: defaultMaxPhotoBytes,
		maxMusicBytes: defaultMaxMusicBytes,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return cfg
}

// photoBatchLimit is the largest multipart body a photo batch may carry.
func (cfg handlerConfig) photoBatchLimit() int64 {
	return int64(domain.MaxPhotosFor(domain.PlanForeverLove))*cfg.maxPhotoBytes + multipartSlack
}

// submissionLimit bounds a one-shot submission carrying every photo and a track.
func (cfg handlerConfig) submissionLimit() int64 {
	return cfg.photoBatchLimit() + cfg.maxMusicBytes
}
