package sites

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSelect(t *testing.T) {
	t.Parallel()

	for _, name := range []string{"", "generic", "woocommerce", "shopify", "WooCommerce"} {
		ext, err := Select(name, nil)
		require.NoError(t, err, "name %q", name)
		require.NotNil(t, ext)
	}

	_, err := Select("magento", nil)
	require.Error(t, err)
}

func TestGenericClassifiesProductPages(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		html string
		leaf bool
	}{
		{
			"og product meta",
			`<html><head><meta property="og:type" content="product"></head><body><p>Widget</p></body></html>`,
			true,
		},
		{
			"schema.org itemtype",
			`<html><body><div itemtype="https://schema.org/Product"><h1>Widget</h1></div></body></html>`,
			true,
		},
		{
			"add to cart button",
			`<html><body><button name="add-to-cart">Add to cart</button></body></html>`,
			true,
		},
		{
			"plain listing page",
			`<html><body><a href="/product/1">One</a><a href="/product/2">Two</a></body></html>`,
			false,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			ext, err := Select("generic", nil)
			require.NoError(t, err)

			record, err := ext.Extract(tc.html, "https://shop.test/page")
			require.NoError(t, err)
			require.Equal(t, tc.leaf, record.IsLeaf)
			if tc.leaf {
				require.NotEmpty(t, record.Content)
				require.Empty(t, record.Links)
			} else {
				require.NotEmpty(t, record.Links)
			}
		})
	}
}

func TestGenericCategoryLinksResolvedAndDeduped(t *testing.T) {
	t.Parallel()

	html := `<html><body>
		<a href="/product/1">One</a>
		<a href="/product/1">One again</a>
		<a href="/product/1#reviews">One reviews</a>
		<a href="https://shop.test/product/2">Two</a>
		<a href="#top">Top</a>
		<a href="mailto:sales@shop.test">Mail</a>
		<a href="tel:+15551234">Call</a>
		<a href="javascript:void(0)">Noop</a>
	</body></html>`

	ext, err := Select("generic", nil)
	require.NoError(t, err)

	record, err := ext.Extract(html, "https://shop.test/category")
	require.NoError(t, err)
	require.False(t, record.IsLeaf)
	require.Equal(t, []string{
		"https://shop.test/product/1",
		"https://shop.test/product/2",
	}, record.Links)
}

func TestGenericProductContentStripsScripts(t *testing.T) {
	t.Parallel()

	html := `<html><head><meta property="og:type" content="product"><title>Widget | Shop</title></head>
	<body><h1>Widget</h1><script>var x = "noise";</script><p>A fine   widget.</p></body></html>`

	ext, err := Select("generic", nil)
	require.NoError(t, err)

	record, err := ext.Extract(html, "https://shop.test/product/widget")
	require.NoError(t, err)
	require.Equal(t, "Widget | Shop", record.Title)
	require.NotContains(t, record.Content, "noise")
	require.Contains(t, record.Content, "A fine widget.")
}

func TestWooCommerceProductDetection(t *testing.T) {
	t.Parallel()

	ext, err := Select("woocommerce", nil)
	require.NoError(t, err)

	product := `<html><body class="single-product woocommerce">
		<div class="product"><div class="summary"><h1>Widget</h1><p class="price">$9.99</p></div></div>
	</body></html>`
	record, err := ext.Extract(product, "https://shop.test/product/widget")
	require.NoError(t, err)
	require.True(t, record.IsLeaf)
	require.Contains(t, record.Content, "Widget")
	require.Contains(t, record.Content, "$9.99")

	category := `<html><body class="archive woocommerce">
		<ul class="products"><li><a href="/product/widget">Widget</a></li></ul>
	</body></html>`
	record, err = ext.Extract(category, "https://shop.test/shop")
	require.NoError(t, err)
	require.False(t, record.IsLeaf)
	require.Contains(t, record.Links, "https://shop.test/product/widget")
}

func TestWooCommerceContentPrefersSummaryBlocks(t *testing.T) {
	t.Parallel()

	ext, err := Select("woocommerce", nil)
	require.NoError(t, err)

	html := `<html><body class="single-product">
		<nav>Home / Shop / Widget</nav>
		<div class="product"><div class="summary"><h1>Widget</h1></div></div>
		<div id="tab-description"><p>Long description here.</p></div>
	</body></html>`
	record, err := ext.Extract(html, "https://shop.test/product/widget")
	require.NoError(t, err)
	require.Contains(t, record.Content, "Long description here.")
	require.NotContains(t, record.Content, "Home / Shop")
}

func TestShopifyProductDetection(t *testing.T) {
	t.Parallel()

	ext, err := Select("shopify", nil)
	require.NoError(t, err)

	cases := []struct {
		name string
		html string
		url  string
		leaf bool
	}{
		{
			"cart add form",
			`<html><body><form action="/cart/add" method="post"></form></body></html>`,
			"https://shop.test/collections/all/widget",
			true,
		},
		{
			"products path",
			`<html><body><h1>Widget</h1></body></html>`,
			"https://shop.test/products/widget",
			true,
		},
		{
			"collection page",
			`<html><body><a href="/products/widget">Widget</a></body></html>`,
			"https://shop.test/collections/all",
			false,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			record, err := ext.Extract(tc.html, tc.url)
			require.NoError(t, err)
			require.Equal(t, tc.leaf, record.IsLeaf)
		})
	}
}
