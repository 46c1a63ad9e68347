package shopify

// productFields is shared by every product query.
const productFields = `
  id
  handle
  title
  description
  images(first: 1) { edges { node { url altText } } }
  variants(first: 10) {
    edges { node { id title price { amount currencyCode } availableForSale } }
  }
  priceRange { minVariantPrice { amount currencyCode } }
`

const queryProduct = `query GetProduct($id: ID!) {
  product(id: $id) {` + productFields + `}
}`

const queryProductByHandle = `query GetProductByHandle($handle: String!) {
  productByHandle(handle: $handle) {` + productFields + `}
}`

const queryCollectionProducts = `query GetProductsByCollection($id: ID!, $first: Int!) {
  collection(id: $id) {
    products(first: $first) { edges { node {` + productFields + `} } }
  }
}`

const queryProducts = `query GetProducts($first: Int!) {
  products(first: $first) { edges { node {` + productFields + `} } }
}`

const queryCart = `query GetCart($id: ID!) {
  cart(id: $id) {
    id
    checkoutUrl
    note
    lines(first: 50) {
      edges {
        node {
          id
          quantity
          merchandise {
            ... on ProductVariant {
              id
              title
              price { amount currencyCode }
              product { id title }
            }
          }
        }
      }
    }
    cost {
      subtotalAmount { amount currencyCode }
      totalAmount { amount currencyCode }
      totalTaxAmount { amount currencyCode }
    }
  }
}`

const userErrorFields = `userErrors { code field message }`

const mutationCartCreate = `mutation CreateCart($input: CartInput!) {
  cartCreate(input: $input) { cart { id } ` + userErrorFields + ` }
}`

const mutationCartLinesAdd = `mutation AddToCart($cartId: ID!, $lines: [CartLineInput!]!) {
  cartLinesAdd(cartId: $cartId, lines: $lines) { cart { id } ` + userErrorFields + ` }
}`

const mutationCartLinesUpdate = `mutation UpdateCartItem($cartId: ID!, $lines: [CartLineUpdateInput!]!) {
  cartLinesUpdate(cartId: $cartId, lines: $lines) { cart { id } ` + userErrorFields + ` }
}`

const mutationCartLinesRemove = `mutation RemoveFromCart($cartId: ID!, $lineIds: [ID!]!) {
  cartLinesRemove(cartId: $cartId, lineIds: $lineIds) { cart { id } ` + userErrorFields + ` }
}`

const mutationCartNoteUpdate = `mutation UpdateCartNote($cartId: ID!, $note: String!) {
  cartNoteUpdate(cartId: $cartId, note: $note) { cart { id } ` + userErrorFields + ` }
}`
