package payment

import (
	"encoding/json"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/pkg/errors"
)

const requestTimeout = 15 * time.Second

// post - sağlayıcı API'sine istek atar, 2xx dışı cevapları hata sayar.
// out nil değilse cevap JSON olarak çözülür.
func post(url string, headers map[string]string, contentType string, body []byte, out interface{}) error {
	a := fiber.Post(url).
		Timeout(requestTimeout).
		ContentType(contentType).
		Body(body)
	for k, v := range headers {
		a.Set(k, v)
	}

	code, resp, errs := a.Bytes()
	if len(errs) > 0 {
		return errors.Wrapf(errs[0], "POST %s", url)
	}
	if code < 200 || code > 299 {
		return errors.Errorf("POST %s: HTTP %d: %s", url, code, truncate(resp, 200))
	}
	if out == nil {
		return nil
	}
	return errors.Wrapf(json.Unmarshal(resp, out), "decode %s", url)
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n]) + "..."
	}
	return string(b)
}
