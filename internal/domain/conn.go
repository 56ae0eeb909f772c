package domain

import "github.com/google/uuid"

// ConnID is the opaque handle of one live duplex connection.
type ConnID string

func NewConnID() ConnID { return ConnID(uuid.NewString()) }
