package media

import (
	"fmt"
	"strings"
)

const deliveryHost = "https://res.cloudinary.com"

// DefaultCloud is the public demo cloud used when none is configured.
const DefaultCloud = "demo"

// Transform is the subset of delivery transformations the blog uses.
// Zero fields take the defaults: 800x600, crop "fill", quality "auto".
type Transform struct {
	Width   int
	Height  int
	Crop    string
	Quality string
}

func (t Transform) withDefaults() Transform {
	if t.Width <= 0 {
		t.Width = 800
	}
	if t.Height <= 0 {
		t.Height = 600
	}
	if t.Crop == "" {
		t.Crop = "fill"
	}
	if t.Quality == "" {
		t.Quality = "auto"
	}
	return t
}

// DeliveryURL returns the optimized delivery URL of an uploaded image.
func DeliveryURL(cloud, publicID string, t Transform) string {
	if cloud == "" {
		cloud = DefaultCloud
	}
	t = t.withDefaults()
	return fmt.Sprintf("%s/%s/image/upload/c_%s,w_%d,h_%d,q_%s/%s",
		deliveryHost, cloud, t.Crop, t.Width, t.Height, t.Quality, strings.TrimPrefix(publicID, "/"))
}
