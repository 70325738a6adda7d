package repository

import "errors"

// ErrConfig is returned from New when the configuration is missing the
// client key or names an unknown refresh strategy. OnRefresh is not
// validated.
var ErrConfig = errors.New("repository: invalid configuration")

// ErrFetch wraps HTTP transport errors, non-200 responses, JSON decode
// failures, and invalid payload shapes.
var ErrFetch = errors.New("repository: fetch failed")

// ErrDecryption wraps bad base64, wrong key, and non-UTF-8 plaintext
// failures while decrypting an encryptedFeatures payload.
var ErrDecryption = errors.New("repository: decryption failed")

// ErrEncryptedWithoutKey is returned when the origin serves an
// encryptedFeatures payload but no decryption key was configured.
var ErrEncryptedWithoutKey = errors.New("repository: encrypted payload received but no decryption key configured")

// ErrInitializationTimeout is returned by AwaitInitialization when the
// deadline elapses before the repository leaves the pending state.
var ErrInitializationTimeout = errors.New("repository: initialization timed out")

// ErrShutdown is returned to any caller still awaiting initialization
// when Shutdown is called.
var ErrShutdown = errors.New("repository: shut down before initialization completed")
