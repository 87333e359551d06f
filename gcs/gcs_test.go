package gcs

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"civicspot/apperr"
	"civicspot/models"
)

func TestCheckUpload(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		file    models.Upload
		wantExt string
		wantErr bool
	}{
		{"jpeg", models.Upload{Filename: "pothole.JPG", ContentType: "image/jpeg", Size: 1024}, "jpeg", false},
		{"png with params", models.Upload{Filename: "a.png", ContentType: "image/png; charset=binary", Size: 10}, "png", false},
		{"webp", models.Upload{Filename: "a.webp", ContentType: "image/webp", Size: 10}, "webp", false},
		{"gif", models.Upload{Filename: "a.gif", ContentType: "image/gif", Size: 10}, "gif", false},
		{"pdf", models.Upload{Filename: "a.pdf", ContentType: "application/pdf", Size: 10}, "", true},
		{"type and extension disagree", models.Upload{Filename: "a.exe", ContentType: "image/png", Size: 10}, "", true},
		{"too large", models.Upload{Filename: "a.jpg", ContentType: "image/jpeg", Size: DefaultMaxImageBytes + 1}, "", true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			ext, err := CheckUpload(tt.file, DefaultMaxImageBytes)
			if tt.wantErr {
				assert.True(t, apperr.Is(err, apperr.KindValidation))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantExt, ext)
		})
	}
}

func TestCheckUpload_TooLargeMessage(t *testing.T) {
	t.Parallel()

	_, err := CheckUpload(models.Upload{Filename: "a.jpg", ContentType: "image/jpeg", Size: 6 << 20}, DefaultMaxImageBytes)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Maximum size is 5MB")
}

func TestObjectName(t *testing.T) {
	t.Parallel()

	now := time.Unix(1700000000, 42)
	a := ObjectName("reports", "png", now)
	b := ObjectName("reports", "png", now)

	assert.True(t, strings.HasPrefix(a, "reports/"))
	assert.True(t, strings.HasSuffix(a, "_1700000000000000042.png"))
	assert.NotEqual(t, a, b)
	assert.False(t, strings.Contains(ObjectName("", "gif", now), "/"))
}
