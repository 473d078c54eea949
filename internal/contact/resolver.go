package contact

import (
	"context"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/agency-crm/internal/normalize"
)

// Resolver maps raw person fields from any ingestion path onto exactly one
// canonical contact, creating it when no match exists. Matching is
// deterministic: a unique phone hit wins, otherwise the household key
// decides. An ambiguous phone (shared by several contacts) is silently
// downgraded to key matching because a false merge is worse than a
// near-duplicate the reconciler can repair later.
type Resolver struct {
	store Store
	log   *zap.Logger
}

// NewResolver creates a Resolver over the given contact store.
func NewResolver(store Store) *Resolver {
	return &Resolver{
		store: store,
		log:   zap.L().With(zap.String("component", "contact_resolver")),
	}
}

// Resolve returns the canonical contact id for the input, creating or
// merging as needed. Returns ErrInvalidInput when the last name is empty
// after normalization; callers must leave their link null in that case.
func (r *Resolver) Resolve(ctx context.Context, in Input) (uuid.UUID, error) {
	f := normalizeInput(in)
	if f.LastName == "" {
		return uuid.Nil, eris.Wrap(ErrInvalidInput, "contact: resolve")
	}

	// Pass 1: exact phone match, only when unambiguous.
	if f.Phone != "" {
		ids, err := r.store.FindIDsByPhone(ctx, in.AgencyID, f.Phone)
		if err != nil {
			return uuid.Nil, err
		}
		switch {
		case len(ids) == 1:
			if err := r.store.MergeInto(ctx, ids[0], f); err != nil {
				return uuid.Nil, err
			}
			return ids[0], nil
		case len(ids) > 1:
			r.log.Debug("phone shared by multiple contacts, falling back to household key",
				zap.String("agency_id", in.AgencyID.String()),
				zap.Int("matches", len(ids)),
			)
		}
	}

	// Pass 2: household-key insert-or-merge.
	key := normalize.HouseholdKey(f.LastName, f.FirstName, f.Zip)
	id, err := r.store.UpsertByKey(ctx, in.AgencyID, key, f)
	if err != nil {
		return uuid.Nil, err
	}
	return id, nil
}

// normalizeInput applies the normalizer to every raw field. Display casing
// is kept for names; keys are derived separately from their uppercase form.
func normalizeInput(in Input) Fields {
	f := Fields{
		FirstName:     normalize.Name(in.FirstName),
		LastName:      normalize.Name(in.LastName),
		Zip:           normalize.Zip(in.Zip),
		Email:         normalize.Email(in.Email),
		StreetAddress: normalize.Name(in.StreetAddress),
		City:          normalize.Name(in.City),
		State:         normalize.KeyName(in.State),
	}
	if digits, ok := normalize.Phone(in.Phone); ok {
		f.Phone = digits
	}
	return f
}
