package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"

	"github.com/cockroachdb/errors"

	"github.com/unkn0wn-root/shopcache"
)

// ListProducts calls GET /products. The gender parameter is sent even when
// empty, matching the cache key.
func (c *Client) ListProducts(ctx context.Context, p shopcache.Params) (shopcache.Page, error) {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(p.Limit))
	q.Set("offset", strconv.Itoa(p.Offset))
	q.Set("gender", p.Gender)

	var pg shopcache.Page
	err := c.do(ctx, request{method: http.MethodGet, path: "/products", query: q}, &pg)
	return pg, err
}

func (c *Client) GetProduct(ctx context.Context, idOrSlug string) (shopcache.Product, error) {
	pp, err := productPath(idOrSlug)
	if err != nil {
		return shopcache.Product{}, err
	}
	var p shopcache.Product
	err = c.do(ctx, request{method: http.MethodGet, path: pp}, &p)
	return p, err
}

func (c *Client) CreateProduct(ctx context.Context, in shopcache.ProductInput) (shopcache.Product, error) {
	return c.writeProduct(ctx, http.MethodPost, "/products", in)
}

func (c *Client) UpdateProduct(ctx context.Context, id string, in shopcache.ProductInput) (shopcache.Product, error) {
	pp, err := productPath(id)
	if err != nil {
		return shopcache.Product{}, err
	}
	return c.writeProduct(ctx, http.MethodPatch, pp, in)
}

// productPath escapes idOrSlug into a single segment under /products.
func productPath(idOrSlug string) (string, error) {
	switch idOrSlug {
	case "", ".", "..":
		return "", errors.Newf("shop api: invalid product id %q", idOrSlug)
	}
	return "/products/" + url.PathEscape(idOrSlug), nil
}

func (c *Client) writeProduct(ctx context.Context, method, p string, in shopcache.ProductInput) (shopcache.Product, error) {
	body, err := jsonBody(in)
	if err != nil {
		return shopcache.Product{}, err
	}
	var out shopcache.Product
	err = c.do(ctx, request{method: method, path: p, body: body, contentType: "application/json"}, &out)
	return out, err
}

type uploadResponse struct {
	FileName string `json:"fileName"`
}

// UploadImage posts a as the multipart field "file" to /files/product and
// returns the stored file name.
func (c *Client) UploadImage(ctx context.Context, a shopcache.Asset) (string, error) {
	if a.Body == nil {
		return "", errors.Newf("shop api: asset %q has no body", a.Name)
	}
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	ct := a.ContentType
	if ct == "" {
		ct = "application/octet-stream"
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, a.Name))
	h.Set("Content-Type", ct)
	part, err := mw.CreatePart(h)
	if err != nil {
		return "", errors.Wrap(err, "shop api: multipart part")
	}
	if _, err := io.Copy(part, a.Body); err != nil {
		return "", errors.Wrapf(err, "shop api: read asset %q", a.Name)
	}
	if err := mw.Close(); err != nil {
		return "", errors.Wrap(err, "shop api: multipart close")
	}

	var resp uploadResponse
	err = c.do(ctx, request{
		method:      http.MethodPost,
		path:        "/files/product",
		body:        &buf,
		contentType: mw.FormDataContentType(),
	}, &resp)
	if err != nil {
		return "", err
	}
	if resp.FileName == "" {
		return "", errors.Newf("shop api: upload of %q returned no file name", a.Name)
	}
	return resp.FileName, nil
}
