package main

import (
	"errors"
	"fmt"
	"mime"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/unkn0wn-root/shopcache"
)

var errNotAdmin = errors.New("admin role required; run `shopctl auth login` first")

func (c *cli) productsCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "products", Aliases: []string{"p"}, Short: "List, show and edit products"}

	var gender string
	var page, limit, offset int
	list := &cobra.Command{
		Use:   "list",
		Short: "List one catalog page",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p := shopcache.PageParams(gender, page)
			if cmd.Flags().Changed("limit") || cmd.Flags().Changed("offset") {
				p = shopcache.Params{Limit: limit, Offset: offset, Gender: gender}
			}
			pg, err := c.app.Cache.GetPage(cmd.Context(), p)
			if err != nil {
				return err
			}
			return c.print(cmd.OutOrStdout(), pg)
		},
	}
	list.Flags().StringVar(&gender, "gender", "", "men, women, kid or unisex")
	list.Flags().IntVar(&page, "page", 1, "1-based page number")
	list.Flags().IntVar(&limit, "limit", shopcache.DefaultLimit, "page size (overrides --page)")
	list.Flags().IntVar(&offset, "offset", 0, "offset (overrides --page)")

	get := &cobra.Command{
		Use:   "get <id-or-slug>",
		Short: "Show one product",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := c.app.Cache.GetProduct(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return c.print(cmd.OutOrStdout(), p)
		},
	}

	cmd.AddCommand(list, get, c.saveCmd("create"), c.saveCmd("update"))
	return cmd
}

type productFlags struct {
	title, slug, description, gender, tags string
	price                                  float64
	stock                                  int
	sizes, images                          []string
}

func (f *productFlags) register(cmd *cobra.Command) {
	fl := cmd.Flags()
	fl.StringVar(&f.title, "title", "", "title")
	fl.StringVar(&f.slug, "slug", "", "url slug, lower-case words joined by '-'")
	fl.StringVar(&f.description, "description", "", "description")
	fl.StringVar(&f.gender, "gender", shopcache.GenderMen, "men, women, kid or unisex")
	fl.StringVar(&f.tags, "tags", "", "comma separated tags")
	fl.Float64Var(&f.price, "price", 0, "price")
	fl.IntVar(&f.stock, "stock", 0, "units in stock")
	fl.StringSliceVar(&f.sizes, "sizes", nil, "sizes: XS,S,M,L,XL,XXL")
	fl.StringSliceVar(&f.images, "image", nil, "image file to upload (repeatable)")
}

// apply overrides in with every flag the user set.
func (f *productFlags) apply(cmd *cobra.Command, in shopcache.ProductInput) shopcache.ProductInput {
	ch := cmd.Flags().Changed
	if ch("title") {
		in.Title = f.title
	}
	if ch("slug") {
		in.Slug = f.slug
	}
	if ch("description") {
		in.Description = f.description
	}
	if ch("gender") || in.Gender == "" {
		in.Gender = f.gender
	}
	if ch("tags") {
		in.Tags = shopcache.ParseTags(f.tags)
	}
	if ch("price") {
		in.Price = f.price
	}
	if ch("stock") {
		in.Stock = f.stock
	}
	if ch("sizes") {
		in.Sizes = f.sizes
	}
	return in
}

func (c *cli) saveCmd(op string) *cobra.Command {
	f := &productFlags{}
	cmd := &cobra.Command{
		Use:   op,
		Short: op + " a product (admin)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if !c.app.Session.CheckStatus(ctx) || !c.app.Session.IsAdmin() {
				return errNotAdmin
			}

			id := shopcache.NewProductID
			if op == "update" {
				id = args[0]
			}
			base, err := c.app.Cache.GetProduct(ctx, id)
			if err != nil {
				return err
			}
			in := f.apply(cmd, shopcache.InputFrom(base))

			assets, closeAll, err := openAssets(f.images)
			if err != nil {
				return err
			}
			defer closeAll()

			p, err := c.app.Cache.Save(ctx, id, in, assets)
			if err != nil {
				return err
			}
			return c.print(cmd.OutOrStdout(), p)
		},
	}
	if op == "update" {
		cmd.Use = "update <id>"
		cmd.Args = cobra.ExactArgs(1)
	} else {
		cmd.Args = cobra.NoArgs
	}
	f.register(cmd)
	return cmd
}

func openAssets(paths []string) ([]shopcache.Asset, func(), error) {
	var files []*os.File
	closeAll := func() {
		for _, fh := range files {
			_ = fh.Close()
		}
	}
	assets := make([]shopcache.Asset, 0, len(paths))
	for _, p := range paths {
		fh, err := os.Open(p)
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("open image: %w", err)
		}
		files = append(files, fh)
		assets = append(assets, shopcache.Asset{
			Name:        filepath.Base(p),
			ContentType: mime.TypeByExtension(filepath.Ext(p)),
			Body:        fh,
		})
	}
	return assets, closeAll, nil
}
