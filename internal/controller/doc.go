// Package controller holds the RGB device controllers served over ORGB and
// the registry that indexes them.
//
// # Registry
//
// A Registry is built once, fully populated, and never resized. Index i always
// names the same controller. Each entry carries its own mutex; Registry.With
// runs a function while holding it so a request's validate-and-apply step is
// atomic from the device's point of view:
//
//	err := reg.With(index, func(c controller.Controller) error {
//	    if err := c.SetColorDescription(payload); err != nil {
//	        return err
//	    }
//	    return c.UpdateLEDs()
//	})
//
// # Descriptions
//
// Controllers describe themselves with a binary blob whose first four bytes
// hold its total size. EncodeDescription and DecodeDescription convert between
// that blob and a Description. The colour and mode payloads sent by clients are
// parsed with ParseColorDescription, ParseZoneColorDescription,
// ParseSingleLEDDescription and ParseModeDescription.
//
// # Virtual Controllers
//
// Virtual is an in-memory controller built from a Description. It keeps the
// "set" colours separate from the "applied" colours so the two-step
// set-then-update protocol is observable without hardware.
package controller
