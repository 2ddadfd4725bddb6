// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package monitor

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"
	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/id"
)

// Session owns one user's authenticated connection to the homeserver. It is
// not safe for concurrent use: the access token and everything derived from
// it belong to a single monitor instance.
type Session struct {
	serverURL  string
	username   string
	password   string
	adminToken string

	client *mautrix.Client
	userID id.UserID
	log    zerolog.Logger
}

// NewSession creates an unauthenticated session. adminToken is only needed
// for Register and DeleteSelf and may be empty otherwise.
func NewSession(serverURL, username, password, adminToken string, log zerolog.Logger) *Session {
	return &Session{
		serverURL:  serverURL,
		username:   username,
		password:   password,
		adminToken: adminToken,
		log:        log.With().Str("component", "session").Logger(),
	}
}

// Login performs a password login and stores the access token and user ID.
// On any failure the session stays unauthenticated; the server-supplied
// message, when present, is attached to the returned AuthError.
func (s *Session) Login(ctx context.Context) error {
	client, err := mautrix.NewClient(s.serverURL, "", "")
	if err != nil {
		return &AuthError{Message: "invalid homeserver URL", Err: err}
	}
	resp, err := client.Login(ctx, &mautrix.ReqLogin{
		Type: mautrix.AuthTypePassword,
		Identifier: mautrix.UserIdentifier{
			Type: mautrix.IdentifierTypeUser,
			User: s.username,
		},
		Password:                 s.password,
		InitialDeviceDisplayName: "bridgewatch",
		StoreCredentials:         true,
	})
	if err != nil {
		return &AuthError{Message: serverMessage(err, "login failed"), Err: err}
	}
	s.client = client
	s.userID = resp.UserID
	s.log.Info().Str("user_id", s.userID.String()).Msg("Logged in")
	return nil
}

// LoggedIn reports whether the session holds an access token.
func (s *Session) LoggedIn() bool {
	return s.client != nil && s.client.AccessToken != ""
}

// Client returns the authenticated API client, or ErrNotAuthenticated.
func (s *Session) Client() (*mautrix.Client, error) {
	if !s.LoggedIn() {
		return nil, ErrNotAuthenticated
	}
	return s.client, nil
}

// UserID returns the logged-in user's Matrix ID, or "" before login.
func (s *Session) UserID() id.UserID {
	return s.userID
}

// Domain returns the homeserver domain extracted from the server URL, used
// to qualify localparts into full user IDs.
func (s *Session) Domain() (string, error) {
	return serverDomain(s.serverURL)
}

// Register provisions a new account through the Synapse admin API. It fails
// with ErrAlreadyExists when the localpart is taken, making re-registration
// idempotent from the caller's perspective.
func (s *Session) Register(ctx context.Context, username, password string) error {
	admin, err := s.adminClient()
	if err != nil {
		return err
	}
	domain, err := s.Domain()
	if err != nil {
		return err
	}
	userID := id.NewUserID(username, domain)

	_, err = admin.MakeFullRequest(ctx, mautrix.FullRequest{
		Method: http.MethodGet,
		URL:    admin.BuildURL(mautrix.SynapseAdminURLPath{"v2", "users", userID.String()}),
	})
	switch {
	case err == nil:
		return fmt.Errorf("%w: %s", ErrAlreadyExists, userID)
	case errors.Is(err, mautrix.MNotFound):
		// Free localpart, proceed.
	default:
		return &AuthError{Message: serverMessage(err, "user lookup failed"), Err: err}
	}

	_, err = admin.MakeFullRequest(ctx, mautrix.FullRequest{
		Method: http.MethodPut,
		URL:    admin.BuildURL(mautrix.SynapseAdminURLPath{"v2", "users", userID.String()}),
		RequestJSON: map[string]any{
			"password": password,
			"admin":    false,
		},
	})
	if err != nil {
		return &AuthError{Message: serverMessage(err, "user creation failed"), Err: err}
	}
	s.log.Info().Str("user_id", userID.String()).Msg("Registered account")
	return nil
}

// DeleteSelf deactivates the logged-in account through the Synapse admin API
// and invalidates the session.
func (s *Session) DeleteSelf(ctx context.Context) error {
	if !s.LoggedIn() {
		return ErrNotAuthenticated
	}
	admin, err := s.adminClient()
	if err != nil {
		return err
	}
	_, err = admin.MakeFullRequest(ctx, mautrix.FullRequest{
		Method:      http.MethodPost,
		URL:         admin.BuildURL(mautrix.SynapseAdminURLPath{"v1", "deactivate", s.userID.String()}),
		RequestJSON: map[string]any{"erase": true},
	})
	if err != nil {
		return &AuthError{Message: serverMessage(err, "account deactivation failed"), Err: err}
	}
	s.log.Info().Str("user_id", s.userID.String()).Msg("Account deactivated")
	s.client = nil
	s.userID = ""
	return nil
}

// Logout invalidates the access token server-side and clears the session.
func (s *Session) Logout(ctx context.Context) error {
	if !s.LoggedIn() {
		return ErrNotAuthenticated
	}
	if _, err := s.client.Logout(ctx); err != nil {
		return &AuthError{Message: serverMessage(err, "logout failed"), Err: err}
	}
	s.client = nil
	s.userID = ""
	return nil
}

// adminClient builds a client carrying the administrator credential held by
// the process. That credential belongs to the operator, not the end user.
func (s *Session) adminClient() (*mautrix.Client, error) {
	if s.adminToken == "" {
		return nil, &AuthError{Message: "no admin token configured"}
	}
	client, err := mautrix.NewClient(s.serverURL, "", s.adminToken)
	if err != nil {
		return nil, &AuthError{Message: "invalid homeserver URL", Err: err}
	}
	return client, nil
}

// serverMessage extracts the server-supplied error message from a Matrix
// HTTP error, falling back to the given default.
func serverMessage(err error, fallback string) string {
	var httpErr mautrix.HTTPError
	if errors.As(err, &httpErr) && httpErr.RespError != nil && httpErr.RespError.Err != "" {
		return httpErr.RespError.Err
	}
	return fallback
}
