package controllers

import (
	"bytes"
	"html/template"

	"github.com/gofiber/fiber/v2"
)

// checkoutPage renders the hosted PayPal checkout used by the plugin,
// which cannot embed the PayPal SDK inside its own iframe sandbox.
var checkoutPage = template.Must(template.New("checkout").Parse(`<!DOCTYPE html>
<html>
<head>
  <meta charset="utf-8">
  <meta name="viewport" content="width=device-width, initial-scale=1">
  <title>AI Memojis — Checkout</title>
  <style>
    body { font-family: -apple-system, "Segoe UI", sans-serif; background: #faf7f2; margin: 0; }
    .card { max-width: 420px; margin: 48px auto; background: #fff; border-radius: 16px;
            padding: 32px; box-shadow: 0 4px 24px rgba(0,0,0,.08); }
    h1 { font-size: 20px; margin: 0 0 4px; }
    .price { font-size: 32px; font-weight: 700; margin: 16px 0; }
    .note { color: #777; font-size: 13px; }
    #status { margin-top: 16px; font-size: 14px; }
  </style>
</head>
<body>
  <div class="card">
    <h1>{{.Title}}</h1>
    <div class="price">{{.Currency}} {{.Amount}}</div>
    <div id="paypal-buttons"></div>
    <div id="status"></div>
    <p class="note">Payment is processed by PayPal. You can close this tab after the confirmation appears.</p>
  </div>
  <script src="https://www.paypal.com/sdk/js?client-id={{.ClientID}}&currency={{.Currency}}"></script>
  <script>
    const status = document.getElementById('status');
    paypal.Buttons({
      createOrder: () =>
        fetch('/api/paypal/orders/create', {
          method: 'POST',
          headers: { 'Content-Type': 'application/json' },
          body: JSON.stringify({ amount: '{{.Amount}}', currency: '{{.Currency}}', title: '{{.Title}}', figmaUserId: '{{.UID}}' })
        }).then(r => r.json()).then(d => d.orderId),
      onApprove: (data) =>
        fetch('/api/paypal/orders/capture', {
          method: 'POST',
          headers: { 'Content-Type': 'application/json' },
          body: JSON.stringify({ orderId: data.orderID })
        }).then(r => r.json()).then(d => {
          status.textContent = d.ok ? 'Payment complete. You can return to the plugin.' : 'Capture failed, please retry.';
        }),
      onError: () => { status.textContent = 'Something went wrong, please retry.'; }
    }).render('#paypal-buttons');
  </script>
</body>
</html>
`))

// Checkout serves the standalone PayPal purchase page. Plan selection
// only changes the displayed price; the authoritative amount check
// happens at capture time on PayPal's side.
func (h *Handler) Checkout(c *fiber.Ctx) error {
	clientID := ""
	if h.PayPal != nil {
		clientID = h.PayPal.ClientID
	}
	if clientID == "" {
		return c.Status(fiber.StatusServiceUnavailable).
			SendString("Checkout is not available: payments are not configured.")
	}

	amount, title := "29.99", "AI Memojis Pro Lifetime"
	if c.Query("plan") == "monthly" {
		amount, title = "4.99", "AI Memojis Monthly"
	}

	var buf bytes.Buffer
	err := checkoutPage.Execute(&buf, struct {
		Title, Amount, Currency, ClientID, UID string
	}{
		Title:    title,
		Amount:   amount,
		Currency: firstOf(c.Query("currency"), "USD"),
		ClientID: clientID,
		UID:      c.Query("uid"),
	})
	if err != nil {
		return err
	}
	c.Set(fiber.HeaderContentType, fiber.MIMETextHTMLCharsetUTF8)
	return c.Send(buf.Bytes())
}
