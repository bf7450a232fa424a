package handlers

import (
	"bytes"
	"image/png"
	"strconv"

	"github.com/gofiber/fiber/v2"
	qrcode "github.com/skip2/go-qrcode"
)

// SiteURL is the canonical address encoded into the QR share asset.
const SiteURL = "https://reactormap.com"

const (
	qrDefaultSize = 512
	qrMinSize     = 64
	qrMaxSize     = 1024
)

// HandleQR serves a QR code pointing at the site, for print/share surfaces.
func HandleQR(c *fiber.Ctx) error {
	size := qrDefaultSize
	if raw := c.Query("size"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid size: must be an integer")
		}
		if n < qrMinSize || n > qrMaxSize {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid size: must be between 64 and 1024")
		}
		size = n
	}

	buf, err := qrcode.Encode(SiteURL, qrcode.Medium, size)
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "QR generation failed")
	}
	// go-qrcode output is already PNG; decode once as a sanity check.
	if _, err := png.Decode(bytes.NewReader(buf)); err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "QR validation failed")
	}

	c.Set("Content-Type", "image/png")
	c.Set("Cache-Control", "public, max-age=86400")
	return c.Send(buf)
}
