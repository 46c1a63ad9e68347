// Package shopify implements gateway.Gateway against the Shopify Storefront
// GraphQL API.
//
// Authentication:
// Storefront calls carry a public access token in the
// X-Shopify-Storefront-Access-Token header. No buyer session is involved; the
// cart id returned by cartCreate is the only handle on the buyer's cart.
package shopify

// === GraphQL Envelope ===

// graphQLRequest is the POST body for every Storefront call.
type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

// graphQLResponse wraps the typed data payload with top-level errors.
type graphQLResponse[T any] struct {
	Data   *T             `json:"data"`
	Errors []graphQLError `json:"errors,omitempty"`
}

// graphQLError is a top-level error (syntax, access, throttling).
type graphQLError struct {
	Message    string `json:"message"`
	Extensions struct {
		Code string `json:"code"` // e.g. "THROTTLED", "ACCESS_DENIED"
	} `json:"extensions"`
}

// UserError is a mutation-level rejection. Messages are buyer-facing.
type UserError struct {
	Code    string   `json:"code"`
	Field   []string `json:"field"`
	Message string   `json:"message"`
}

// === Shared Shapes ===

// Money is MoneyV2. Amount is a decimal string in major units ("99.0").
type Money struct {
	Amount       string `json:"amount"`
	CurrencyCode string `json:"currencyCode"`
}

type imageConnection struct {
	Edges []struct {
		Node struct {
			URL     string `json:"url"`
			AltText string `json:"altText"`
		} `json:"node"`
	} `json:"edges"`
}

// === Catalog ===

// StorefrontProduct is the Product fields selected by productFields.
type StorefrontProduct struct {
	ID          string          `json:"id"`
	Handle      string          `json:"handle"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Images      imageConnection `json:"images"`
	Variants    struct {
		Edges []struct {
			Node StorefrontVariant `json:"node"`
		} `json:"edges"`
	} `json:"variants"`
	PriceRange struct {
		MinVariantPrice Money `json:"minVariantPrice"`
	} `json:"priceRange"`
}

// StorefrontVariant is a ProductVariant node.
type StorefrontVariant struct {
	ID               string `json:"id"`
	Title            string `json:"title"`
	Price            Money  `json:"price"`
	AvailableForSale bool   `json:"availableForSale"`
}

type productConnection struct {
	Edges []struct {
		Node StorefrontProduct `json:"node"`
	} `json:"edges"`
}

type productData struct {
	Product *StorefrontProduct `json:"product"`
}

type productByHandleData struct {
	Product *StorefrontProduct `json:"productByHandle"`
}

type collectionData struct {
	Collection *struct {
		Products productConnection `json:"products"`
	} `json:"collection"`
}

type productsData struct {
	Products productConnection `json:"products"`
}

// === Cart ===

// StorefrontCart is the Cart fields selected by cartQuery.
type StorefrontCart struct {
	ID          string `json:"id"`
	CheckoutURL string `json:"checkoutUrl"`
	Note        string `json:"note"`
	Lines       struct {
		Edges []struct {
			Node StorefrontCartLine `json:"node"`
		} `json:"edges"`
	} `json:"lines"`
	Cost struct {
		SubtotalAmount Money  `json:"subtotalAmount"`
		TotalAmount    Money  `json:"totalAmount"`
		TotalTaxAmount *Money `json:"totalTaxAmount"` // null until taxes are estimated
	} `json:"cost"`
}

// StorefrontCartLine is a CartLine node with ProductVariant merchandise.
type StorefrontCartLine struct {
	ID          string `json:"id"`
	Quantity    int    `json:"quantity"`
	Merchandise struct {
		ID      string `json:"id"`
		Title   string `json:"title"`
		Price   Money  `json:"price"`
		Product struct {
			ID    string `json:"id"`
			Title string `json:"title"`
		} `json:"product"`
	} `json:"merchandise"`
}

type cartData struct {
	Cart *StorefrontCart `json:"cart"`
}

// cartPayload is the common shape of cart mutation payloads.
type cartPayload struct {
	Cart *struct {
		ID string `json:"id"`
	} `json:"cart"`
	UserErrors []UserError `json:"userErrors"`
}

type cartCreateData struct {
	CartCreate cartPayload `json:"cartCreate"`
}

type cartLinesAddData struct {
	CartLinesAdd cartPayload `json:"cartLinesAdd"`
}

type cartLinesUpdateData struct {
	CartLinesUpdate cartPayload `json:"cartLinesUpdate"`
}

type cartLinesRemoveData struct {
	CartLinesRemove cartPayload `json:"cartLinesRemove"`
}

type cartNoteUpdateData struct {
	CartNoteUpdate cartPayload `json:"cartNoteUpdate"`
}
