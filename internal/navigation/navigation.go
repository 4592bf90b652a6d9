// Package navigation decides which page a user is sent to after each flow event.
package navigation

import (
	"strings"

	"github.com/vtranslate/storefront/internal/checkout"
	"github.com/vtranslate/storefront/internal/models"
)

type Page string

const (
	PageHome           Page = "/"
	PagePricing        Page = "/pricing"
	PageLogin          Page = "/login"
	PagePayment        Page = "/payment"
	PagePaymentSuccess Page = "/payment-success"
)

func (p Page) String() string { return string(p) }

func AfterPlanSelected() Page { return PagePayment }

func AfterLogin() Page { return PageHome }

func AfterLogout() Page { return PageLogin }

// ReturnURL is the absolute URL the payment processor redirects to after confirmation.
func ReturnURL(baseURL string) string {
	return strings.TrimRight(baseURL, "/") + string(PagePaymentSuccess)
}

// Recovery is a manual navigation affordance shown on a blocking error.
type Recovery struct {
	Page  Page
	Label string
}

// CheckoutRecovery returns the way back to plan selection for checkout states
// that cannot proceed. Failed flows holding a client secret can resubmit in place.
func CheckoutRecovery(v checkout.View) (Recovery, bool) {
	switch {
	case v.State == checkout.StatePlanMissing:
		return Recovery{Page: PagePricing, Label: "Select a plan"}, true
	case v.State == checkout.StateFailed && v.ClientSecret == "":
		return Recovery{Page: PagePricing, Label: "Back to pricing"}, true
	}
	return Recovery{}, false
}

// Gate returns the page an anonymous user must visit instead of page, if any.
func Gate(page Page, user *models.CurrentUser) (Page, bool) {
	if page == PageHome && user == nil {
		return PageLogin, true
	}
	return page, false
}
