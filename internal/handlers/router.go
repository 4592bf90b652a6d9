package handlers

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/vtranslate/storefront/internal/middleware"
	"github.com/vtranslate/storefront/internal/session"
)

type RouterDeps struct {
	Pages          *PageHandlers
	Payments       *PaymentHandlers
	Sessions       *middleware.SessionMiddleware
	Store          session.Store
	AllowedOrigins []string
	Logger         *logrus.Logger
}

func SetupRouter(d RouterDeps) *mux.Router {
	router := mux.NewRouter()

	router.Use(d.Sessions.Handler)
	router.Use(middleware.LoggingMiddleware(d.Logger))

	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods("GET")

	home := router.Path("/").Subrouter()
	home.Use(middleware.RequireUser(d.Store, d.Logger))
	home.Methods("GET").HandlerFunc(d.Pages.Home)

	router.HandleFunc("/pricing", d.Pages.Pricing).Methods("GET")
	router.HandleFunc("/pricing/select", d.Pages.SelectPlan).Methods("POST")

	router.HandleFunc("/login", d.Pages.Login).Methods("GET")
	router.HandleFunc("/login/otp", d.Pages.RequestOTP).Methods("POST")
	router.HandleFunc("/login/resend", d.Pages.ResendOTP).Methods("POST")
	router.HandleFunc("/login/verify", d.Pages.VerifyOTP).Methods("POST")
	router.HandleFunc("/login/back", d.Pages.BackToEmail).Methods("POST")
	router.HandleFunc("/logout", d.Pages.Logout).Methods("POST")

	router.HandleFunc("/payment", d.Pages.Payment).Methods("GET")
	router.HandleFunc("/payment-success", d.Pages.PaymentSuccess).Methods("GET")

	api := router.PathPrefix("/api").Subrouter()
	api.Use(middleware.CORSMiddleware(d.AllowedOrigins))
	api.HandleFunc("/create-payment-intent", d.Payments.CreatePaymentIntent).Methods("POST", "OPTIONS")
	api.HandleFunc("/login/status", d.Pages.LoginStatus).Methods("GET")
	api.HandleFunc("/login/digit", d.Pages.Digit).Methods("POST")
	api.HandleFunc("/checkout/submit", d.Pages.CheckoutSubmit).Methods("POST")
	api.HandleFunc("/checkout/result", d.Pages.CheckoutResult).Methods("POST")

	return router
}
