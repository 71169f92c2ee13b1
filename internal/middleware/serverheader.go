package middleware

type ServerHeader struct {
	product string
}

func NewServerHeader(product string) *ServerHeader {
	return &ServerHeader{product: product}
}

func (h *ServerHeader) HandleResponse(header Header, status int) error {
	header.Set("Server", h.product)
	return nil
}
