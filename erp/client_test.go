package erp

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"erpcache.eve.dev/apierrors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchProductSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/resource/Item/WEB-ITM-0002", r.URL.Path)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"name":"WEB-ITM-0002","item_name":"Widget"}`))
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL, Timeout: time.Second})
	product, err := client.FetchProduct(context.Background(), "WEB-ITM-0002")

	require.NoError(t, err)
	assert.Equal(t, "Widget", product["item_name"])
}

func TestFetchProductNotFoundClassifiesAsNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL, Timeout: time.Second})
	_, err := client.FetchProduct(context.Background(), "ghost")

	assert.True(t, apierrors.Is(err, apierrors.NotFound))
}

func TestFetch5xxClassifiesAsTransientAndRetries(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL, Timeout: time.Second, Retries: 2})
	_, err := client.FetchProduct(context.Background(), "X")

	assert.True(t, apierrors.Is(err, apierrors.Transient))
	assert.Equal(t, 3, attempts)
}

func TestFetch4xxClassifiesAsPermanentWithoutRetry(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL, Timeout: time.Second, Retries: 2})
	_, err := client.FetchProduct(context.Background(), "X")

	assert.True(t, apierrors.Is(err, apierrors.Permanent))
	assert.Equal(t, 1, attempts)
}

func TestFetchItemPriceDecodesRetailAndWholesale(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"retail":12.5,"wholesale":9.0}`))
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL, Timeout: time.Second})
	price, err := client.FetchItemPrice(context.Background(), "WEB-ITM-0002")

	require.NoError(t, err)
	assert.Equal(t, 12.5, price.Retail)
	assert.Equal(t, 9.0, price.Wholesale)
}

func TestFetchBlobReturnsBodyAndContentType(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte{0xFF, 0xD8, 0xFF})
	}))
	defer server.Close()

	client := NewClient(Config{Timeout: time.Second})
	body, contentType, err := client.FetchBlob(context.Background(), server.URL+"/hero.jpg")

	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", contentType)
	assert.Equal(t, []byte{0xFF, 0xD8, 0xFF}, body)
}
