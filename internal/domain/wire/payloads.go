package wire

// Device mirrors spec §4.1's Device submessage.
type Device struct {
	Name            string
	OperatingSystem string
	Version         string
	IPAddress       string
}

func (d *Device) Marshal() []byte {
	e := newEncoder()
	e.string(d.Name)
	e.string(d.OperatingSystem)
	e.string(d.Version)
	e.string(d.IPAddress)
	return e.bytesOut()
}

func (d *Device) Unmarshal(payload []byte) error {
	dec := newDecoder(payload)
	var err error
	if d.Name, err = dec.string(); err != nil {
		return err
	}
	if d.OperatingSystem, err = dec.string(); err != nil {
		return err
	}
	if d.Version, err = dec.string(); err != nil {
		return err
	}
	if d.IPAddress, err = dec.string(); err != nil {
		return err
	}
	return nil
}

// Identification mirrors spec §4.1's Identification submessage: an
// encrypted bearer token plus the device reporting it.
type Identification struct {
	Token  string
	Device Device
}

func (i *Identification) Marshal() []byte {
	e := newEncoder()
	e.string(i.Token)
	e.bytes(i.Device.Marshal())
	return e.bytesOut()
}

func (i *Identification) Unmarshal(payload []byte) error {
	dec := newDecoder(payload)
	var err error
	if i.Token, err = dec.string(); err != nil {
		return err
	}
	deviceBytes, err := dec.bytesField()
	if err != nil {
		return err
	}
	return i.Device.Unmarshal(deviceBytes)
}

// DirectMessage mirrors spec §4.1's DirectMessage submessage.
type DirectMessage struct {
	TargetIdentifier string
	Payload          []byte
	SentAt           int64
}

func (m *DirectMessage) Marshal() []byte {
	e := newEncoder()
	e.string(m.TargetIdentifier)
	e.bytes(m.Payload)
	e.int64(m.SentAt)
	return e.bytesOut()
}

func (m *DirectMessage) Unmarshal(payload []byte) error {
	dec := newDecoder(payload)
	var err error
	if m.TargetIdentifier, err = dec.string(); err != nil {
		return err
	}
	if m.Payload, err = dec.bytesField(); err != nil {
		return err
	}
	if m.SentAt, err = dec.int64(); err != nil {
		return err
	}
	return nil
}

// Delivery mirrors spec §4.1's Delivery submessage: an acknowledgement sent
// back to the sender of a direct message.
type Delivery struct {
	Message          string
	State            DeliveryState
	Marker           string
	TargetIdentifier string
	SentAt           int64
}

func (d *Delivery) Marshal() []byte {
	e := newEncoder()
	e.string(d.Message)
	e.int32(int32(d.State))
	e.string(d.Marker)
	e.string(d.TargetIdentifier)
	e.int64(d.SentAt)
	return e.bytesOut()
}

func (d *Delivery) Unmarshal(payload []byte) error {
	dec := newDecoder(payload)
	var err error
	if d.Message, err = dec.string(); err != nil {
		return err
	}
	state, err := dec.int32()
	if err != nil {
		return err
	}
	d.State = DeliveryState(state)
	if d.Marker, err = dec.string(); err != nil {
		return err
	}
	if d.TargetIdentifier, err = dec.string(); err != nil {
		return err
	}
	if d.SentAt, err = dec.int64(); err != nil {
		return err
	}
	return nil
}

// Info mirrors spec §4.1's Info submessage, used for IDENTITY_ACCEPTED.
type Info struct {
	Message    string
	Details    string
	OccurredAt int64
}

func (i *Info) Marshal() []byte {
	e := newEncoder()
	e.string(i.Message)
	e.string(i.Details)
	e.int64(i.OccurredAt)
	return e.bytesOut()
}

func (i *Info) Unmarshal(payload []byte) error {
	dec := newDecoder(payload)
	var err error
	if i.Message, err = dec.string(); err != nil {
		return err
	}
	if i.Details, err = dec.string(); err != nil {
		return err
	}
	if i.OccurredAt, err = dec.int64(); err != nil {
		return err
	}
	return nil
}

// Failure mirrors spec §4.1's Failure submessage, used for IDENTITY_REJECTION.
type Failure struct {
	Error      string
	Details    string
	OccurredAt int64
}

func (f *Failure) Marshal() []byte {
	e := newEncoder()
	e.string(f.Error)
	e.string(f.Details)
	e.int64(f.OccurredAt)
	return e.bytesOut()
}

func (f *Failure) Unmarshal(payload []byte) error {
	dec := newDecoder(payload)
	var err error
	if f.Error, err = dec.string(); err != nil {
		return err
	}
	if f.Details, err = dec.string(); err != nil {
		return err
	}
	if f.OccurredAt, err = dec.int64(); err != nil {
		return err
	}
	return nil
}

// ContactRequest mirrors spec §4.1's ContactRequest submessage.
type ContactRequest struct {
	Type  ContactType
	Value string
}

// Contact mirrors spec §4.1's Contact submessage, returned in a contact batch.
type Contact struct {
	Identifier string
	Nickname   string
	PhotoURL   string
}

// BatchContactMatchRequest mirrors spec §4.1's BatchContactMatchRequest submessage.
type BatchContactMatchRequest struct {
	Requests []ContactRequest
}

func (r *BatchContactMatchRequest) Marshal() []byte {
	e := newEncoder()
	e.int32(int32(len(r.Requests)))
	for _, req := range r.Requests {
		e.int32(int32(req.Type))
		e.string(req.Value)
	}
	return e.bytesOut()
}

func (r *BatchContactMatchRequest) Unmarshal(payload []byte) error {
	dec := newDecoder(payload)
	count, err := dec.int32()
	if err != nil {
		return err
	}
	r.Requests = make([]ContactRequest, 0, count)
	for i := int32(0); i < count; i++ {
		typ, err := dec.int32()
		if err != nil {
			return err
		}
		value, err := dec.string()
		if err != nil {
			return err
		}
		r.Requests = append(r.Requests, ContactRequest{Type: ContactType(typ), Value: value})
	}
	return nil
}

// BatchContactMatchResponse mirrors spec §4.1's BatchContactMatchResponse submessage.
type BatchContactMatchResponse struct {
	Contacts []Contact
}

func (r *BatchContactMatchResponse) Marshal() []byte {
	e := newEncoder()
	e.int32(int32(len(r.Contacts)))
	for _, c := range r.Contacts {
		e.string(c.Identifier)
		e.string(c.Nickname)
		e.string(c.PhotoURL)
	}
	return e.bytesOut()
}

func (r *BatchContactMatchResponse) Unmarshal(payload []byte) error {
	dec := newDecoder(payload)
	count, err := dec.int32()
	if err != nil {
		return err
	}
	r.Contacts = make([]Contact, 0, count)
	for i := int32(0); i < count; i++ {
		id, err := dec.string()
		if err != nil {
			return err
		}
		nickname, err := dec.string()
		if err != nil {
			return err
		}
		photo, err := dec.string()
		if err != nil {
			return err
		}
		r.Contacts = append(r.Contacts, Contact{Identifier: id, Nickname: nickname, PhotoURL: photo})
	}
	return nil
}

// ParticipantPassOver mirrors spec §4.1's ParticipantPassOver submessage,
// published on the bus to forward a direct message to the node currently
// holding the target participant's connection.
type ParticipantPassOver struct {
	SenderIdentifier string
	TargetIdentifier string
	OriginatingNode  string
	Payload          []byte
	Marker           string
	Nickname         string
}

func (p *ParticipantPassOver) Marshal() []byte {
	e := newEncoder()
	e.string(p.SenderIdentifier)
	e.string(p.TargetIdentifier)
	e.string(p.OriginatingNode)
	e.bytes(p.Payload)
	e.string(p.Marker)
	e.string(p.Nickname)
	return e.bytesOut()
}

func (p *ParticipantPassOver) Unmarshal(payload []byte) error {
	dec := newDecoder(payload)
	var err error
	if p.SenderIdentifier, err = dec.string(); err != nil {
		return err
	}
	if p.TargetIdentifier, err = dec.string(); err != nil {
		return err
	}
	if p.OriginatingNode, err = dec.string(); err != nil {
		return err
	}
	if p.Payload, err = dec.bytesField(); err != nil {
		return err
	}
	if p.Marker, err = dec.string(); err != nil {
		return err
	}
	if p.Nickname, err = dec.string(); err != nil {
		return err
	}
	return nil
}
