// Package shopcache implements a read-through cache with write-invalidation
// for a storefront product backend. Listing pages and single products are
// served from the cache once fetched; creates and updates go through the
// cache, which uploads images first, issues the write and then patches every
// cached page that carries the written product.
//
// Components:
//   - Backend: remote product API (see package client for the REST one).
//   - Provider: byte store the cache writes through (memory by default).
//   - Codec[V]: (de)serializes Page/Product <-> []byte.
//
// Keys:
//
//	page:<ns>:<limit>-<offset>-<filter>  - listing pages
//	product:<ns>:<id-or-slug>            - single products
//
// Read/write pattern:
//
//	page, err := c.GetPage(ctx, shopcache.PageParams("men", 2))
//	p, err := c.UpdateProduct(ctx, id, input, assets) // patches cached pages
package shopcache
