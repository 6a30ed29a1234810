package service

import (
	redisx "github.com/mkravets/tickethub/internal/redis"
	"github.com/mkravets/tickethub/internal/repository"
	redisrepo "github.com/mkravets/tickethub/internal/repository/redis"
	"github.com/mkravets/tickethub/internal/service/checkin"
	"github.com/mkravets/tickethub/internal/service/checkout"
	"github.com/mkravets/tickethub/internal/service/discounts"
	"github.com/mkravets/tickethub/internal/service/query"
	"github.com/mkravets/tickethub/internal/ticketsig"
)

type Services struct {
	Checkout  *checkout.Service
	Checkin   *checkin.Service
	Discounts *discounts.Service
	Query     *query.Service
}

type Config struct {
	Checkout checkout.Config
}

func NewServices(
	store repository.Store,
	cache *redisrepo.Cache,
	pubsub *redisx.InventoryPubSub,
	limiter *redisrepo.SlidingWindowLimiter,
	signer *ticketsig.Signer,
	cfg Config,
) *Services {
	return &Services{
		Checkout:  checkout.New(store, cache, pubsub, limiter, signer, cfg.Checkout),
		Checkin:   checkin.New(store, signer),
		Discounts: discounts.New(store),
		Query:     query.New(store, cache),
	}
}
