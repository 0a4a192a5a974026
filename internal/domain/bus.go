package domain

// MessageBus routes events between the platform channel and the dispatcher.
type MessageBus interface {
	Publish(ev InboundEvent)
	Subscribe() <-chan InboundEvent
	SendOutbound(msg OutboundMessage)
	OnOutbound(handler func(OutboundMessage))
	Close()
}
