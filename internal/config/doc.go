// Package config loads client configuration for the pulse CLI.
//
// The configuration lives in pulse.json or pulse.yaml in the working
// directory. Credentials and the host may be overridden with the
// PULSE_KEY, PULSE_TOKEN and PULSE_HOST environment variables.
//
// # Configuration File Structure
//
//	{
//	  "key": "app.key:secret",
//	  "clientId": "alice",
//	  "host": "realtime.pulse.dev",
//	  "format": "json",
//	  "timeouts": {
//	    "connect": "15s",
//	    "suspend": "60s"
//	  },
//	  "channels": {
//	    "secret-room": {"cipherKey": "base64key"}
//	  },
//	  "log": {"level": "debug"}
//	}
//
// # Usage
//
//	cfg, err := config.Load(".")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	cfg.ApplyEnv(nil)
//	opts, err := cfg.Options()
package config
