package main

import (
	"errors"
	"fmt"
	"io"
	"time"

	"sitepulse/api/config"
	"sitepulse/api/utils"
)

// printToken writes a stats read token for the configured owner.
func printToken(w io.Writer, cfg *config.Config, ttl time.Duration) error {
	if cfg.Ingest.OwnerUserID == "" {
		return errors.New("OWNER_USER_ID is not set")
	}
	token, err := utils.GenerateJWT([]byte(cfg.JWT.Secret), cfg.Ingest.OwnerUserID, "", ttl)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, token)
	return err
}
