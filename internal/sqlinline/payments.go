package sqlinline

const QInsertPayment = `--sql 3f0c2b8e-5d41-4a8e-9b0c-7c1e2f6a9d13
insert into payments(payment_id, provider, plan_id, amount_minor, currency, country, redirect_url, status, created_at, updated_at)
values ($1::text, $2::text, $3::text, $4::bigint, $5::text, $6::text, $7::text, 'pending', now(), now())
on conflict (provider, payment_id) do nothing;
`

const QMarkPaymentSucceeded = `--sql 8d7e6a21-0b9f-4c3d-a5e4-1f2b3c4d5e6f
update payments
set status = 'succeeded', updated_at = now()
where provider = $1::text
  and payment_id = $2::text
  and status <> 'succeeded';
`

const QSelectPayment = `--sql c41a9e07-6f2d-4b8a-9e13-52d0b7a4f8c6
select payment_id, provider, plan_id, amount_minor, currency, country, redirect_url, status, created_at, updated_at
from payments
where provider = $1::text
  and payment_id = $2::text;
`

const QListPendingPayments = `--sql 5b2e9f14-a7c3-4d60-8e21-9f0a1b2c3d4e
select payment_id, provider, plan_id, amount_minor, currency, country, redirect_url, status, created_at, updated_at
from payments
where status = 'pending'
  and created_at > now() - make_interval(hours => $1::int)
order by checked_at asc nulls first, created_at asc
limit $2::int;
`

const QMarkPaymentChecked = `--sql e7a3c915-2b6d-4f08-8c47-a19d3e5f0b72
update payments
set status = $3::text, checked_at = now(), updated_at = now()
where provider = $1::text
  and payment_id = $2::text
  and status = 'pending';
`
