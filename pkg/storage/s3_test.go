package storage

import (
	"context"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewS3_RequiresBucket(t *testing.T) {
	_, err := NewS3(context.Background(), S3Config{Region: "ap-south-1"}, nil)
	assert.Error(t, err)
}

func TestPresignExport(t *testing.T) {
	s, err := NewS3(context.Background(), S3Config{
		Region:               "ap-south-1",
		AccessKeyID:          "AKIDEXAMPLE",
		SecretAccessKey:      "secret",
		ExportsBucket:        "webinar-exports",
		PresignExpireMinutes: 10,
		Endpoint:             "http://localhost:9000",
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, 10*time.Minute, s.PresignExpire())

	raw, err := s.PresignExport(context.Background(), "exports/w1/attendees.csv")
	require.NoError(t, err)
	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "localhost:9000", u.Host)
	assert.True(t, strings.HasPrefix(u.Path, "/webinar-exports/exports/w1/attendees.csv"))
	assert.Equal(t, "600", u.Query().Get("X-Amz-Expires"))
}

func TestPresignExpireDefault(t *testing.T) {
	s := &S3{}
	assert.Equal(t, 15*time.Minute, s.PresignExpire())
}
