package shopcache

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// CreateProduct validates in, uploads assets, creates the product with the
// uploaded names appended to in.Images and reconciles the cache with the
// result. Any failure leaves the cache untouched and is returned as is.
// Assets uploaded before a failure are not deleted.
func (c *Cache) CreateProduct(ctx context.Context, in ProductInput, assets []Asset) (Product, error) {
	return c.write(ctx, "", in, assets)
}

// UpdateProduct is CreateProduct for an existing product.
func (c *Cache) UpdateProduct(ctx context.Context, id string, in ProductInput, assets []Asset) (Product, error) {
	switch id {
	case NewProductID:
		return Product{}, ErrPlaceholderID
	case "":
		return Product{}, ErrEmptyID
	}
	return c.write(ctx, id, in, assets)
}

// Save creates when id is NewProductID and updates otherwise.
func (c *Cache) Save(ctx context.Context, id string, in ProductInput, assets []Asset) (Product, error) {
	if id == NewProductID {
		return c.CreateProduct(ctx, in, assets)
	}
	return c.UpdateProduct(ctx, id, in, assets)
}

// UploadImages uploads every asset concurrently and returns the assigned
// names in asset order. The first failure is returned once all uploads
// have finished; nothing is rolled back.
func (c *Cache) UploadImages(ctx context.Context, assets []Asset) ([]string, error) {
	names := make([]string, len(assets))
	if len(assets) == 0 {
		return names, nil
	}

	var g errgroup.Group
	if c.uploadLimit > 0 {
		g.SetLimit(c.uploadLimit)
	}
	for i, a := range assets {
		i, a := i, a
		g.Go(func() error {
			name, err := c.backend.UploadImage(ctx, a)
			if err != nil {
				c.hooks.UploadFailed(i, a.Name, err)
				return err
			}
			names[i] = name
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return names, nil
}

func (c *Cache) write(ctx context.Context, id string, in ProductInput, assets []Asset) (Product, error) {
	op := "update"
	if id == "" {
		op = "create"
	}
	if err := in.Validate(); err != nil {
		return Product{}, err
	}

	names, err := c.UploadImages(ctx, assets)
	if err != nil {
		c.log.Warn("image upload failed", Fields{"op": op, "id": id, "assets": len(assets), "err": err})
		return Product{}, err
	}
	in = withImages(in, names)

	var p Product
	if op == "create" {
		p, err = c.backend.CreateProduct(ctx, in)
	} else {
		p, err = c.backend.UpdateProduct(ctx, id, in)
	}
	if err != nil {
		c.log.Warn("product write failed", Fields{"op": op, "id": id, "uploaded": len(names), "err": err})
		return Product{}, err
	}

	c.Reconcile(ctx, p)
	return p, nil
}

// withImages appends uploaded names after the existing references and
// replaces nil lists with empty ones for the wire.
func withImages(in ProductInput, uploaded []string) ProductInput {
	images := make([]string, 0, len(in.Images)+len(uploaded))
	images = append(images, in.Images...)
	images = append(images, uploaded...)
	in.Images = images
	if in.Sizes == nil {
		in.Sizes = []string{}
	}
	if in.Tags == nil {
		in.Tags = []string{}
	}
	return in
}
