package provider_test

import (
	"errors"
	"testing"

	"github.com/okian/tablewire/internal/config"
	"github.com/okian/tablewire/internal/provider"
	"github.com/okian/tablewire/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func TestRegistry(t *testing.T) {
	Convey("Given a registered factory", t, func() {
		name := "Registry-Test"
		if _, ok := provider.FactoryByName(name); !ok {
			provider.Register(name, func(*config.Config, logger.Logger) (provider.Provider, error) {
				return nil, nil
			})
		}

		Convey("Then lookups are case-insensitive", func() {
			_, ok := provider.FactoryByName("  REGISTRY-test ")
			So(ok, ShouldBeTrue)
			So(provider.AvailableNames(), ShouldContain, "registry-test")
		})

		Convey("Then Build invokes it", func() {
			_, err := provider.Build(name, nil, nil)
			So(err, ShouldBeNil)
		})

		Convey("Then a duplicate registration panics", func() {
			So(func() {
				provider.Register(name, func(*config.Config, logger.Logger) (provider.Provider, error) { return nil, nil })
			}, ShouldPanic)
		})

		Convey("Then an empty name panics", func() {
			So(func() { provider.Register(" ", nil) }, ShouldPanic)
		})
	})

	Convey("Given an unknown name", t, func() {
		_, err := provider.Build("nope", nil, nil)

		Convey("Then ErrUnknownProvider is returned", func() {
			So(errors.Is(err, provider.ErrUnknownProvider), ShouldBeTrue)
		})
	})
}

func TestHTTPError(t *testing.T) {
	Convey("Given an upstream HTTP error", t, func() {
		var err error = &provider.HTTPError{StatusCode: 502, URL: "https://lobby.example/state"}

		Convey("Then it matches the sentinel and exposes its status", func() {
			So(errors.Is(err, provider.ErrUpstreamHTTP), ShouldBeTrue)
			var he *provider.HTTPError
			So(errors.As(err, &he), ShouldBeTrue)
			So(he.StatusCode, ShouldEqual, 502)
			So(err.Error(), ShouldContainSubstring, "502")
		})
	})
}
