package email

const (
	subjectOrderConfirmedFmt = "Nuevo pedido confirmado: %s"
)
