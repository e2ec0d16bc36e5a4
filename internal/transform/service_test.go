package transform

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blink-new/ai-headshot-generator-platform-9xjz6qh9/internal/gemini"
	"github.com/blink-new/ai-headshot-generator-platform-9xjz6qh9/internal/storage"
)

type fakeEditor struct {
	mu      sync.Mutex
	prompts []string
	refs    int
	fail    bool
}

func (f *fakeEditor) EditImage(_ context.Context, prompt string, images []gemini.ImageInput, _ gemini.ImageOptions) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return nil, errors.New("model overloaded")
	}
	f.prompts = append(f.prompts, prompt)
	f.refs = len(images)
	// Encode the variant marker so every output is distinct.
	marker := prompt
	if i := strings.LastIndex(prompt, "variant"); i >= 0 {
		marker = prompt[i:]
	}
	return []string{"data:image/png;base64," + base64.StdEncoding.EncodeToString([]byte(marker))}, nil
}

func newLocal(t *testing.T) *storage.Local {
	t.Helper()
	local, err := storage.NewLocal(storage.LocalOptions{Root: t.TempDir(), BaseURL: "http://files.test"})
	require.NoError(t, err)
	return local
}

func seed(t *testing.T, local *storage.Local, name string) string {
	t.Helper()
	obj, err := local.Upload(context.Background(), "headshots/user-1/"+name, strings.NewReader("photo-"+name), storage.UploadOptions{ContentType: "image/jpeg"})
	require.NoError(t, err)
	return obj.URL
}

func TestModifyImageReturnsNVariantsInOrder(t *testing.T) {
	local := newLocal(t)
	refs := []string{seed(t, local, "a.jpg"), seed(t, local, "b.jpg")}
	editor := &fakeEditor{}
	svc := New(Options{Editor: editor, Storage: local})

	out, err := svc.ModifyImage(context.Background(), Request{
		OwnerID: "user-1",
		Images:  refs,
		Prompt:  "Create a professional headshot",
		Quality: "high",
		N:       4,
	})
	require.NoError(t, err)
	require.Len(t, out, 4)
	assert.Equal(t, 2, editor.refs)

	for i, img := range out {
		assert.True(t, strings.HasPrefix(img.URL, "http://files.test/generated/user-1/"), img.URL)
		data, contentType, err := local.Fetch(context.Background(), img.URL)
		require.NoError(t, err)
		assert.Equal(t, "image/png", contentType)
		assert.Equal(t, fmt.Sprintf("variant %d of 4. Vary pose and expression slightly while keeping the same person.", i+1), string(data))
	}

	require.Len(t, editor.prompts, 4)
	for _, p := range editor.prompts {
		assert.Contains(t, p, "highest available quality")
	}
}

func TestModifyImageFailsWhenAnyVariantFails(t *testing.T) {
	local := newLocal(t)
	svc := New(Options{Editor: &fakeEditor{fail: true}, Storage: local})

	_, err := svc.ModifyImage(context.Background(), Request{
		OwnerID: "user-1",
		Images:  []string{seed(t, local, "a.jpg")},
		Prompt:  "p",
		N:       4,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model overloaded")
}

func TestModifyImageUnknownReference(t *testing.T) {
	local := newLocal(t)
	svc := New(Options{Editor: &fakeEditor{}, Storage: local})

	_, err := svc.ModifyImage(context.Background(), Request{
		OwnerID: "user-1",
		Images:  []string{"http://files.test/headshots/user-1/missing.jpg"},
		Prompt:  "p",
	})
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestModifyImageValidates(t *testing.T) {
	svc := New(Options{Editor: &fakeEditor{}, Storage: newLocal(t)})

	_, err := svc.ModifyImage(context.Background(), Request{Prompt: "p"})
	assert.ErrorIs(t, err, ErrNoImages)

	_, err = svc.ModifyImage(context.Background(), Request{Images: []string{"x"}, Prompt: "  "})
	assert.ErrorIs(t, err, ErrNoPrompt)
}
