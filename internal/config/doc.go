// Package config provides loading and environment overlay for certd
// configuration. Default() is the baseline; a JSON file and CERTD_*
// variables are layered on top, and command-line flags last.
//
// Example:
//
//	cfg, err := config.Load("/etc/certd.json")
//	if err != nil {
//	    return err
//	}
//	config.FromEnv(&cfg)
//	if err := cfg.Validate(); err != nil {
//	    return err
//	}
//	rt, _ := runtime.Open(runtime.Options{Config: cfg})
//	defer rt.Close()
package config
