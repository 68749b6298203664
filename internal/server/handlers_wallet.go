package server

import (
	"net/http"

	"github.com/aimerfeng/Gigsy/internal/middleware"
	"github.com/aimerfeng/Gigsy/internal/wallet"
	"github.com/gin-gonic/gin"
)

func (s *APIServer) handleGetWallet(c *gin.Context) {
	userID, ok := pathID(c, "id")
	if !ok {
		return
	}

	w, err := s.walletService.GetWalletByUser(c.Request.Context(), middleware.ProfileFromContext(c), userID)
	if err != nil {
		middleware.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, w)
}

func (s *APIServer) handleListTransactions(c *gin.Context) {
	userID, ok := pathID(c, "id")
	if !ok {
		return
	}

	resp, err := s.walletService.ListTransactions(c.Request.Context(),
		middleware.ProfileFromContext(c),
		userID,
		queryInt(c, "page", 1),
		queryInt(c, "page_size", 20),
	)
	if err != nil {
		middleware.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// handleCreateTransaction spends from or transfers out of a wallet. Credits
// are accepted from admins only.
func (s *APIServer) handleCreateTransaction(c *gin.Context) {
	userID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req wallet.CreateTransactionRequest
	if !bindJSON(c, &req) {
		return
	}

	tx, err := s.walletService.CreateTransaction(c.Request.Context(), middleware.ProfileFromContext(c), userID, &req)
	if err != nil {
		middleware.RespondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, tx)
}

// handleCreditPackage deposits a paid coin package
func (s *APIServer) handleCreditPackage(c *gin.Context) {
	userID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req wallet.CreditPackageRequest
	if !bindJSON(c, &req) {
		return
	}

	tx, err := s.walletService.CreditPackage(c.Request.Context(), middleware.ProfileFromContext(c), userID, &req)
	if err != nil {
		middleware.RespondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, tx)
}

func (s *APIServer) handleListPackages(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"packages": s.walletService.Packages()})
}

func (s *APIServer) handleLeaderboard(c *gin.Context) {
	entries, err := s.walletService.Leaderboard(c.Request.Context(), queryInt(c, "limit", 10))
	if err != nil {
		middleware.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}
