// Package config provides configuration parsing for the lattice server.
//
// The configuration is stored in lattice.json at the working directory
// root. Every field has a default, a missing file is not an error, and
// LATTICE_* environment variables override whatever the file says.
//
// # Configuration File Structure
//
//	{
//	  "addr": ":3000",
//	  "metricsNamespace": "lattice",
//	  "allowedOrigins": ["https://app.example.com"],
//	  "clientWrites": true,
//	  "snapshot": {
//	    "dir": "./snapshots",
//	    "name": "state",
//	    "everyNChanges": 50,
//	    "minIntervalSeconds": 300
//	  }
//	}
//
// # Usage
//
//	cfg, err := config.Load(".")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	fmt.Println("Addr:", cfg.Addr)
package config
