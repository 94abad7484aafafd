// Package api is the REST client for the collaborator backend.
//
// Endpoints:
//   - GET  /auth/me: viewer profile (session cookie required)
//   - POST /api/mock-investment/start, /buy, /sell
//   - GET  /api/mock-investment/balance, /holdings, /holdings-summary, /trade-history
//   - POST /api/chat: chatbot
//
// Error bodies carry {"detail": "..."}, surfaced as APIError.Detail.
package api
