package config

import "errors"

var (
	ErrInvalidStorageConfig      = errors.New("invalid storage configuration")
	ErrInvalidCryptoConfig       = errors.New("invalid crypto configuration")
	ErrInvalidTempKeyConfig      = errors.New("invalid temporary key configuration")
	ErrInvalidSessionCacheConfig = errors.New("invalid session cache configuration")
	ErrInvalidLogConfig          = errors.New("invalid log configuration")
)
