// Package config defines the cart service configuration.
package config

import (
	"errors"
	"fmt"

	pkgcfg "github.com/agrodel/cartsync/pkg/config"
)

// Config is the root configuration for the cart service.
type Config struct {
	HTTPServer pkgcfg.HTTPConfig     `koanf:"server"`
	PProf      pkgcfg.PProfConfig    `koanf:"pprof"`
	Log        pkgcfg.LogConfig      `koanf:"log"`
	Shutdown   pkgcfg.ShutdownConfig `koanf:"shutdown"`
	Nats       pkgcfg.NATSConfig     `koanf:"nats"`
	IdP        pkgcfg.IdP            `koanf:"idp"`
	CartAPI    pkgcfg.UpstreamConfig `koanf:"cart_api"`
	ProductAPI pkgcfg.UpstreamConfig `koanf:"product_api"`
	Breaker    pkgcfg.BreakerConfig  `koanf:"breaker"`
	Store      pkgcfg.StoreConfig    `koanf:"store"`
	Session    pkgcfg.SessionConfig  `koanf:"session"`
	Editor     pkgcfg.EditorConfig   `koanf:"editor"`
}

// Validate checks every section of the configuration.
func (c *Config) Validate() error {
	return errors.Join(
		c.HTTPServer.Validate(),
		c.PProf.Validate(),
		c.Log.Validate(),
		c.Shutdown.Validate(),
		c.Nats.Validate(),
		c.IdP.Validate(),
		c.CartAPI.Validate(),
		c.ProductAPI.Validate(),
		c.Breaker.Validate(),
		c.Store.Validate(),
		c.Session.Validate(),
		c.Editor.Validate(),
	)
}

// String returns a human-readable representation of the configuration.
func (c *Config) String() string {
	return fmt.Sprintf("Config{HTTPServer: %v, PProf: %v, Log: %v, Shutdown: %v, Nats: %v, IdP: %v, CartAPI: %v, ProductAPI: %v, Breaker: %v, Store: %v, Session: %v, Editor: %v}",
		c.HTTPServer, &c.PProf, &c.Log, &c.Shutdown, &c.Nats, &c.IdP, &c.CartAPI, &c.ProductAPI, &c.Breaker, &c.Store, &c.Session, &c.Editor)
}
