package docsvc

import (
	"bytes"
	"context"
	"io/ioutil"
	"os"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eminingcampus/campus/core/learning"
)

func TestRenderCertificate(t *testing.T) {
	r := NewCertificateRenderer("E-miningCampus")
	content, err := r.RenderCertificate(learning.CertificateData{
		CertificateID:  "CERT-202406-9F3A01BC",
		StudentName:    "Ama Owusu",
		CourseTitle:    "Introduction to Underground Mine Ventilation and Safety Systems",
		InstructorName: "Kofi Boateng",
		IssuedAt:       time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC),
		SiteURL:        "https://campus.test",
	})
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(content, []byte("%PDF-")))
}

func TestWrapTitle(t *testing.T) {
	tests := []struct {
		name  string
		title string
		want  []string
	}{
		{name: "short", title: "Mine Surveying", want: []string{"Mine Surveying"}},
		{
			name:  "long",
			title: "Introduction to Underground Mine Ventilation and Safety Systems",
			want:  []string{"Introduction to Underground Mine Ventilation and", "Safety Systems"},
		},
		{name: "one long word", title: "Pneumonoultramicroscopicsilicovolcanoconiosisanalysis", want: []string{"Pneumonoultramicroscopicsilicovolcanoconiosisanalysis"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, wrapTitle(tt.title, titleWrapAt))
		})
	}
}

func TestLocalStore(t *testing.T) {
	ctx := context.Background()
	store := NewLocalStore(t.TempDir())

	ref, err := store.Save(ctx, "certificate_CERT-1.pdf", []byte("%PDF-1.3 test"))
	require.NoError(t, err)
	assert.Equal(t, "certificates/certificate_CERT-1.pdf", ref)

	rc, err := store.Open(ctx, ref)
	require.NoError(t, err)
	content, err := ioutil.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, "%PDF-1.3 test", string(content))

	_, err = store.Open(ctx, "certificates/missing.pdf")
	assert.True(t, os.IsNotExist(errors.Cause(err)))

	_, err = store.Open(ctx, "../etc/passwd")
	assert.Equal(t, errInvalidRef, err)
}
