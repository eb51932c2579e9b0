package cart

import (
	"net/http"
	"strconv"

	"github.com/angelmondragon/storefront-checkout/api/responses"
	"github.com/angelmondragon/storefront-checkout/pkg/types"
)

// writeCart answers with the cart view and exposes its version as ETag so
// clients can echo it back through If-Match.
func writeCart(w http.ResponseWriter, cart *types.Cart) {
	if cart != nil {
		setVersion(w, cart)
	}
	responses.WriteSuccess(w, cart)
}

func setVersion(w http.ResponseWriter, cart *types.Cart) {
	w.Header().Set("ETag", strconv.Quote(strconv.FormatInt(cart.Version, 10)))
}
