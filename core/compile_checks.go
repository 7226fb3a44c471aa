package core

import glog "github.com/goliatone/go-logger/glog"

var (
	_ Registry                 = (*ProviderRegistry)(nil)
	_ IntegrationService       = (*Service)(nil)
	_ StatusReader             = (*Service)(nil)
	_ OperationFailureRecorder = (*Service)(nil)
	_ CredentialLocker         = (*MemoryCredentialLocker)(nil)
	_ CredentialCodec          = JSONCredentialCodec{}

	_ Logger         = glog.Nop()
	_ LoggerProvider = glog.ProviderFromLogger(glog.Nop())
)
