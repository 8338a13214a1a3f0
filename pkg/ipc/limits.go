package ipc

const (
	defaultMaxPorts       = 128
	maxEventStreamClients = 32

	// portSendQueue bounds messages waiting to be written to one port.
	portSendQueue = 256

	maxWSReadBytesPort        = 1 << 20
	maxWSReadBytesEventStream = 4 << 10

	maxBroadcastBytes int64 = 1 << 20
)
