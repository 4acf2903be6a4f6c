package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var loginAttempts = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "login_attempts_total",
		Help: "Login attempts by outcome",
	},
	[]string{"outcome"},
)

const (
	loginSuccess            = "success"
	loginInvalidCredentials = "invalid_credentials"
	loginLocked             = "locked"
	loginError              = "error"
)
