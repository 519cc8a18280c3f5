// Package log provides secure logging functionality with automatic sanitization
// of sensitive information, built on top of the standard slog package.
//
// This package extends slog to provide:
//   - Automatic sanitization of sensitive values (cookies, tokens, secrets)
//   - Masking of share tokens and tickets inside URL query strings
//   - A fan-out handler so one run logs to the console and to traverser.log
//
// # Security Features
//
// The SecureHandler sanitizes sensitive information in log output:
//   - HTTP headers (Authorization, Cookie, Set-Cookie, X-Api-Key)
//   - Secret values detected by pattern matching (JWTs, bearer tokens, keys)
//   - Session identifiers and authentication tokens
//   - Query parameters such as token, ticket and sig in logged URLs
//
// Even in verbose mode, sensitive values are masked. Workspace URLs visited
// during a traversal end up in shared logs, so this matters more than usual.
//
// # Usage
//
//	logger := log.NewSecureLogger(os.Stderr, true) // verbose=true
//	logger.Info("visited", "url", "https://docs.example.com/wiki/a?token=abc")
//	// url=https://docs.example.com/wiki/a?token=%2A%2A%2AREDACTED%2A%2A%2A
//
//	// Console plus run log file
//	logger = log.NewRunLogger(os.Stderr, file, verbose, false)
package log
