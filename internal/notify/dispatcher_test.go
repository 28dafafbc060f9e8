package notify_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"price-tracker/internal/model"
	"price-tracker/internal/notify"
)

type fakeDeliverer struct {
	err        error
	recipients []string
	content    notify.EmailContent
}

func (f *fakeDeliverer) Deliver(_ context.Context, content notify.EmailContent, recipients []string) error {
	f.content = content
	f.recipients = recipients
	return f.err
}

type fakeMirror struct {
	err   error
	posts []notify.EmailContent
}

func (f *fakeMirror) Name() string { return "fake" }

func (f *fakeMirror) Post(_ context.Context, content notify.EmailContent) error {
	f.posts = append(f.posts, content)
	return f.err
}

func TestDispatcherDeliver(t *testing.T) {
	rq := require.New(t)

	email := &fakeDeliverer{}
	failing := &fakeMirror{err: errors.New("mirror down")}
	ok := &fakeMirror{}
	d := notify.NewDispatcher(email, failing, ok)

	content, err := d.Render(notify.ProductInfo{Title: "A", URL: "https://shop.test/a"}, model.NotificationLowestPrice)
	rq.NoError(err)

	rq.NoError(d.Deliver(context.Background(), content, []string{"u@x.com"}))
	rq.Equal([]string{"u@x.com"}, email.recipients)
	rq.Equal(content, email.content)
	rq.Len(failing.posts, 1)
	rq.Len(ok.posts, 1)
}

func TestDispatcherEmailFailureSkipsMirrors(t *testing.T) {
	rq := require.New(t)

	boom := errors.New("smtp down")
	mirror := &fakeMirror{}
	d := notify.NewDispatcher(&fakeDeliverer{err: boom}, mirror)

	err := d.Deliver(context.Background(), notify.EmailContent{Subject: "s"}, []string{"u@x.com"})
	rq.ErrorIs(err, boom)
	rq.Empty(mirror.posts)
}

func TestBarkMirror(t *testing.T) {
	rq := require.New(t)

	var gotPath, gotLink string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.EscapedPath()
		gotLink = r.URL.Query().Get("url")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	m := notify.NewBarkMirror(srv.URL+"/", "device-key")
	rq.Equal("bark", m.Name())

	err := m.Post(context.Background(), notify.EmailContent{
		Subject: "Lowest Price Alert for A",
		Link:    "https://shop.test/a?ref=1",
	})
	rq.NoError(err)
	rq.Equal("/device-key/PriceWatch/Lowest%20Price%20Alert%20for%20A", gotPath)
	rq.Equal("https://shop.test/a?ref=1", gotLink)
}

func TestBarkMirrorErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	err := notify.NewBarkMirror(srv.URL, "k").Post(context.Background(), notify.EmailContent{Subject: "s"})
	require.ErrorContains(t, err, "unexpected status code: 400")

	err = notify.NewBarkMirror(srv.URL, "").Post(context.Background(), notify.EmailContent{Subject: "s"})
	require.ErrorContains(t, err, "bark key is empty")
}
